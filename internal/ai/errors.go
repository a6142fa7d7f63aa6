package ai

import "github.com/reviewreplai/reviewrepl/internal/ai/provider"

// Errors returned by every AI backend, matched with errors.Is.
var (
	ErrProviderUnavailable = provider.ErrProviderUnavailable
	ErrInferenceTimeout    = provider.ErrInferenceTimeout
	ErrInvalidResponse     = provider.ErrInvalidResponse
	ErrRateLimited         = provider.ErrRateLimited
	ErrRequestRejected     = provider.ErrRequestRejected
)
