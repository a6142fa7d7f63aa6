// Package models contains shared data models used across the ReviewRepl codebase.
package models

import "context"

// AIProvider is the core interface that all AI integrations must implement.
// Handlers never call a specific provider directly; they receive this interface.
type AIProvider interface {
	// Complete sends a single prompt and returns the generated text.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the output of an AI completion.
type CompletionResult struct {
	Text  string     `json:"text"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}

// TokenUsage reports token accounting when the provider returns it.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
