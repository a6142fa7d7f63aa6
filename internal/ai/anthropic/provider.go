package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewreplai/reviewrepl/internal/ai/provider"
	"github.com/reviewreplai/reviewrepl/internal/config"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	model  string
	client *provider.Client
}

func NewProvider(cfg config.AnthropicConfig, opts provider.Options) *Provider {
	return &Provider{
		model: cfg.Model,
		client: provider.NewClient(cfg.BaseURL, map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": apiVersion,
		}, opts),
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := messagesRequest{
		Model:       p.model,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
	}

	var resp messagesResponse
	if err := p.client.PostJSON(ctx, "/v1/messages", body, &resp); err != nil {
		return models.CompletionResult{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return models.CompletionResult{}, fmt.Errorf("anthropic messages: %w: no text content", provider.ErrInvalidResponse)
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return models.CompletionResult{
		Text:  text,
		Model: model,
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

var _ models.AIProvider = (*Provider)(nil)
