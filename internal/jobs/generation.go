package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/reviewreplai/reviewrepl/internal/ai"
	"github.com/reviewreplai/reviewrepl/pkg/models"
	"github.com/reviewreplai/reviewrepl/pkg/prompt"
)

const maxLanguageLength = 35

var errNoProvider = errors.New("no AI provider configured")

// AIGenerationHandler drafts a public reply to a customer review.
type AIGenerationHandler struct {
	provider models.AIProvider
	builder  prompt.Builder
}

func NewAIGenerationHandler(provider models.AIProvider) *AIGenerationHandler {
	return &AIGenerationHandler{provider: provider}
}

type generationPayload struct {
	ReviewText   string `json:"review_text"`
	Rating       int    `json:"rating"`
	ReviewerName string `json:"reviewer_name"`
	BusinessName string `json:"business_name"`
	Tone         string `json:"tone"`
	Language     string `json:"language"`
	MaxLength    int    `json:"max_length"`
}

// GenerationResult is the stored result of an ai_generation job.
type GenerationResult struct {
	Reply    string            `json:"reply"`
	Tone     prompt.Tone       `json:"tone"`
	Language string            `json:"language"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Usage    models.TokenUsage `json:"usage"`
}

func (h *AIGenerationHandler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p generationPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	params, err := p.params()
	if err != nil {
		return nil, err
	}
	if h.provider == nil {
		return nil, errNoProvider
	}

	res, err := h.provider.Complete(ctx, h.builder.BuildReply(params))
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	reply := strings.TrimSpace(res.Text)
	if reply == "" {
		return nil, fmt.Errorf("generate reply: %w: empty completion", ai.ErrInvalidResponse)
	}

	return json.Marshal(GenerationResult{
		Reply:    truncateRunes(reply, params.MaxLength),
		Tone:     params.Tone,
		Language: params.Language,
		Provider: h.provider.Name(),
		Model:    res.Model,
		Usage:    res.Usage,
	})
}

// params validates the payload and resolves defaults.
func (p generationPayload) params() (prompt.ReplyParams, error) {
	if err := requireText("review_text", p.ReviewText); err != nil {
		return prompt.ReplyParams{}, err
	}
	if p.Rating != 0 && (p.Rating < 1 || p.Rating > 5) {
		return prompt.ReplyParams{}, fmt.Errorf("%w: rating must be between 1 and 5, got %d", ErrInvalidPayload, p.Rating)
	}
	if p.MaxLength < 0 || p.MaxLength > prompt.MaxReplyLength {
		return prompt.ReplyParams{}, fmt.Errorf("%w: max_length must be between 1 and %d", ErrInvalidPayload, prompt.MaxReplyLength)
	}

	tone := prompt.ToneForRating(p.Rating)
	if p.Tone != "" {
		t, ok := prompt.ParseTone(p.Tone)
		if !ok {
			return prompt.ReplyParams{}, fmt.Errorf("%w: unknown tone %q", ErrInvalidPayload, p.Tone)
		}
		tone = t
	}

	lang := strings.TrimSpace(p.Language)
	if lang == "" {
		lang = prompt.DefaultLanguage
	}
	if len(lang) > maxLanguageLength {
		return prompt.ReplyParams{}, fmt.Errorf("%w: language is too long", ErrInvalidPayload)
	}

	return prompt.ReplyParams{
		ReviewText:   p.ReviewText,
		Rating:       p.Rating,
		ReviewerName: p.ReviewerName,
		BusinessName: p.BusinessName,
		Tone:         tone,
		Language:     lang,
		MaxLength:    prompt.ClampLength(p.MaxLength),
	}, nil
}
