package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/reviewreplai/reviewrepl/internal/ai"
	"github.com/reviewreplai/reviewrepl/pkg/models"
	"github.com/reviewreplai/reviewrepl/pkg/prompt"
)

// PromptAnalysisHandler reports statistics on a reply prompt and asks the
// AI provider to critique it.
type PromptAnalysisHandler struct {
	provider models.AIProvider
	builder  prompt.Builder
}

func NewPromptAnalysisHandler(provider models.AIProvider) *PromptAnalysisHandler {
	return &PromptAnalysisHandler{provider: provider}
}

type promptAnalysisPayload struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context"`
}

// PromptAnalysisResult is the stored result of a prompt_analysis job.
type PromptAnalysisResult struct {
	Analysis     string   `json:"analysis"`
	WordCount    int      `json:"word_count"`
	CharCount    int      `json:"char_count"`
	Placeholders []string `json:"placeholders"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
}

func (h *PromptAnalysisHandler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p promptAnalysisPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if err := requireText("prompt", p.Prompt); err != nil {
		return nil, err
	}
	if err := limitText("context", p.Context); err != nil {
		return nil, err
	}
	if h.provider == nil {
		return nil, errNoProvider
	}

	res, err := h.provider.Complete(ctx, h.builder.BuildAnalysis(prompt.AnalysisParams{
		Prompt:  p.Prompt,
		Context: p.Context,
	}))
	if err != nil {
		return nil, fmt.Errorf("analyze prompt: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, fmt.Errorf("analyze prompt: %w: empty completion", ai.ErrInvalidResponse)
	}

	return json.Marshal(PromptAnalysisResult{
		Analysis:     text,
		WordCount:    len(strings.Fields(p.Prompt)),
		CharCount:    utf8.RuneCountInString(p.Prompt),
		Placeholders: prompt.Placeholders(p.Prompt),
		Provider:     h.provider.Name(),
		Model:        res.Model,
	})
}
