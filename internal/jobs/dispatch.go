package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// maxTextLength caps free-text payload fields, in characters.
const maxTextLength = 10000

// Handler processes the payload of one job type and returns its result.
// Validation failures wrap ErrInvalidPayload.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// Dispatcher routes a claimed job to the handler for its type.
type Dispatcher struct {
	AIGeneration      Handler
	ReviewProcessing  Handler
	PromptAnalysis    Handler
	SentimentAnalysis Handler
}

// NewDispatcher wires the default handler for every job type.
func NewDispatcher(provider models.AIProvider) *Dispatcher {
	return &Dispatcher{
		AIGeneration:      NewAIGenerationHandler(provider),
		ReviewProcessing:  ReviewProcessingHandler{},
		PromptAnalysis:    NewPromptAnalysisHandler(provider),
		SentimentAnalysis: SentimentHandler{},
	}
}

// Handle runs the handler matching job.Type.
func (d *Dispatcher) Handle(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	var h Handler
	switch job.Type {
	case models.JobTypeAIGeneration:
		h = d.AIGeneration
	case models.JobTypeReviewProcessing:
		h = d.ReviewProcessing
	case models.JobTypePromptAnalysis:
		h = d.PromptAnalysis
	case models.JobTypeSentimentAnalysis:
		h = d.SentimentAnalysis
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, job.Type)
	}
	if h == nil {
		return nil, fmt.Errorf("no handler configured for %s", job.Type)
	}
	return h.Handle(ctx, job.Payload)
}

// decodePayload strictly decodes a payload object into v.
func decodePayload(payload json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after payload object", ErrInvalidPayload)
	}
	return nil
}

func requireText(field, s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidPayload, field)
	}
	return limitText(field, s)
}

func limitText(field, s string) error {
	if n := utf8.RuneCountInString(s); n > maxTextLength {
		return fmt.Errorf("%w: %s must be at most %d characters, got %d", ErrInvalidPayload, field, maxTextLength, n)
	}
	return nil
}

// truncateRunes shortens s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
