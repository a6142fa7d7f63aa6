package jobs

import "errors"

var (
	// ErrInvalidJobType is returned when a submission names a job type
	// outside the supported set. No job is created.
	ErrInvalidJobType = errors.New("invalid job type")
	// ErrInvalidPayload is returned by Submit for a non-object payload and
	// by handlers whose payload fails validation.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotFound covers both missing jobs and jobs owned by another user.
	ErrNotFound = errors.New("job not found")
	// ErrStoreUnavailable wraps job store failures surfaced to callers.
	ErrStoreUnavailable = errors.New("job store unavailable")

	ErrHandlerTimeout = errors.New("handler timed out")
	ErrHandlerPanic   = errors.New("handler panicked")
)
