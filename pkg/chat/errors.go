package chat

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a completion provider failure
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed"
	KindUpstream  ErrorKind = "upstream"
)

// ProviderError is any failure of the completion provider during one exchange.
// It is recoverable: the session stays usable.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// NewProviderError creates a ProviderError
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Err:      err,
	}
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (%s, status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError extracts a *ProviderError from err's chain
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// wrapProviderError makes sure every provider failure surfaces as a *ProviderError.
func wrapProviderError(provider string, err error) *ProviderError {
	if perr, ok := AsProviderError(err); ok {
		return perr
	}
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return NewProviderError(provider, kind, err)
}
