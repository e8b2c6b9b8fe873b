package airlock

import "errors"

// Sentinel errors for the airlock domain.
var (
	// ErrNotFound reports a cache key with no stored response.
	ErrNotFound = errors.New("not found")
	// ErrGenerationMissing reports an operation against a generation that
	// does not exist or was never completed.
	ErrGenerationMissing = errors.New("generation missing")
	// ErrOriginUnreachable reports a transport-level failure talking to the
	// origin. A response with an error status is not this error.
	ErrOriginUnreachable = errors.New("origin unreachable")
	// ErrNoFallback reports that a failed request has no cached fallback.
	ErrNoFallback = errors.New("no fallback available")
)
