package vllm

import (
	"github.com/reviewreplai/reviewrepl/internal/ai/openai"
	"github.com/reviewreplai/reviewrepl/internal/ai/provider"
	"github.com/reviewreplai/reviewrepl/internal/config"
)

// NewProvider returns a provider for a vLLM server. vLLM serves the OpenAI
// Chat Completions API, so the openai implementation is reused.
func NewProvider(cfg config.VLLMConfig, opts provider.Options) *openai.Provider {
	return openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model, opts)
}
