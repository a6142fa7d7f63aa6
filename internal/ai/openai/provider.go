package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewreplai/reviewrepl/internal/ai/provider"
	"github.com/reviewreplai/reviewrepl/internal/config"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// Provider implements models.AIProvider against the Chat Completions API.
// Any OpenAI-compatible server can be targeted with NewCompatible.
type Provider struct {
	name   string
	model  string
	client *provider.Client
}

func NewProvider(cfg config.OpenAIConfig, opts provider.Options) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model, opts)
}

// NewCompatible creates a Provider for an OpenAI-compatible endpoint.
// apiKey may be empty for servers that do not authenticate.
func NewCompatible(name, baseURL, apiKey, model string, opts provider.Options) *Provider {
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return &Provider{
		name:   name,
		model:  model,
		client: provider.NewClient(baseURL, headers, opts),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	body := chatRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	var resp chatResponse
	if err := p.client.PostJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return models.CompletionResult{}, fmt.Errorf("%s completion: %w", p.name, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return models.CompletionResult{}, fmt.Errorf("%s completion: %w: no content", p.name, provider.ErrInvalidResponse)
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return models.CompletionResult{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: model,
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

var _ models.AIProvider = (*Provider)(nil)
