// Package ai selects and constructs the AI backend used by job handlers.
package ai

import (
	"fmt"

	"github.com/reviewreplai/reviewrepl/internal/ai/anthropic"
	"github.com/reviewreplai/reviewrepl/internal/ai/mock"
	"github.com/reviewreplai/reviewrepl/internal/ai/ollama"
	"github.com/reviewreplai/reviewrepl/internal/ai/openai"
	"github.com/reviewreplai/reviewrepl/internal/ai/provider"
	"github.com/reviewreplai/reviewrepl/internal/ai/vllm"
	"github.com/reviewreplai/reviewrepl/internal/config"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at worker startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	opts := provider.Options{
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}

	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, opts), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, opts), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, opts), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, opts), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic, mock", cfg.Provider)
	}
}
