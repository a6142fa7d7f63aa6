package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewreplai/reviewrepl/internal/ai/provider"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// MockProvider satisfies models.AIProvider for tests and local runs.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return models.CompletionResult{}, nil
}

// NewMockProvider returns a MockProvider with deterministic responses. The
// reply echoes the start of the prompt so callers can tell requests apart.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, req models.CompletionRequest) (models.CompletionResult, error) {
			words := strings.Fields(req.Prompt)
			if len(words) > 8 {
				words = words[:8]
			}
			return models.CompletionResult{
				Text:  fmt.Sprintf("Mock response to: %s", strings.Join(words, " ")),
				Model: "mock-v1",
				Usage: models.TokenUsage{
					InputTokens:  len(strings.Fields(req.System)) + len(strings.Fields(req.Prompt)),
					OutputTokens: len(words) + 3,
				},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.CompletionResult, error) {
			return models.CompletionResult{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (models.CompletionResult, error) {
			<-ctx.Done()
			return models.CompletionResult{}, provider.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
