package ai

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyResponse is used when the provider answered without any content.
var ErrEmptyResponse = errors.New("provider returned no content")

// ProviderError wraps every failure of a remote model call.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrQuotaExceeded) match rate limited calls.
func (e *ProviderError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusTooManyRequests
}

// NewProviderError builds a ProviderError, returning nil for a nil err.
func NewProviderError(provider, op string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Op: op, StatusCode: status, Err: err}
}
