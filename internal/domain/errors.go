package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoSessionID      = errors.New("no session id")
	ErrReadinessTimeout = errors.New("instance not ready")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrSecretNotFound   = errors.New("secret not found")
)

// AuthenticationError means the instance rejected the credential. It is fatal for
// the endpoint's current operation only.
type AuthenticationError struct {
	Host string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authenticate %s: %v", e.Host, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransportError is a network failure or an unexpected HTTP status.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err != nil {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type ReadinessTimeoutError struct {
	Host   string
	Waited time.Duration
	Last   error
}

func (e *ReadinessTimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s not ready after %s", e.Host, e.Waited)
	}
	return fmt.Sprintf("%s not ready after %s: %v", e.Host, e.Waited, e.Last)
}

func (e *ReadinessTimeoutError) Is(target error) bool {
	return target == ErrReadinessTimeout
}

func (e *ReadinessTimeoutError) Unwrap() error { return e.Last }

// SerializationError aborts the sub-sync that produced it.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}
