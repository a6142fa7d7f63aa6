// Package provider holds the HTTP plumbing and error taxonomy shared by the
// AI backend implementations.
package provider

import "errors"

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrRateLimited         = errors.New("ai provider rate limited")
	ErrRequestRejected     = errors.New("ai provider rejected request")
)
