package llm

import "errors"

var (
	ErrUnauthorized  = errors.New("llm unauthorized")
	ErrUnavailable   = errors.New("llm unavailable")
	ErrEgressBlocked = errors.New("egress blocked")
	ErrRateLimited   = errors.New("llm rate limited")
)

// Transient reports whether an error is worth retrying with the same prompt.
// Auth and egress-policy failures are permanent until configuration changes;
// everything else coming back from a provider is treated as retryable.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrEgressBlocked) {
		return false
	}
	return true
}
