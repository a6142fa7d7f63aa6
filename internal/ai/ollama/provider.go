package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewreplai/reviewrepl/internal/ai/provider"
	"github.com/reviewreplai/reviewrepl/internal/config"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// Provider implements models.AIProvider using Ollama's /api/chat endpoint.
type Provider struct {
	model  string
	client *provider.Client
}

func NewProvider(cfg config.OllamaConfig, opts provider.Options) *Provider {
	return &Provider{
		model:  cfg.Model,
		client: provider.NewClient(cfg.BaseURL, nil, opts),
	}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	body := chatRequest{
		Model:  p.model,
		Stream: false,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	var resp chatResponse
	if err := p.client.PostJSON(ctx, "/api/chat", body, &resp); err != nil {
		return models.CompletionResult{}, fmt.Errorf("ollama chat: %w", err)
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return models.CompletionResult{}, fmt.Errorf("ollama chat: %w: empty message", provider.ErrInvalidResponse)
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return models.CompletionResult{
		Text:  text,
		Model: model,
		Usage: models.TokenUsage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

var _ models.AIProvider = (*Provider)(nil)
