package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrBackend matches every *BackendError via errors.Is.
var ErrBackend = errors.New("backend error")

type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindEmpty     ErrorKind = "empty"
	KindConfig    ErrorKind = "config"
)

// BackendError is a failed backend call.
type BackendError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// Wrap turns err into a *BackendError, classifying deadline errors as timeouts.
// Errors that already are *BackendError are returned unchanged.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	kind := KindTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &BackendError{Provider: provider, Kind: kind, Err: err}
}

func StatusError(provider string, status int, body string) error {
	return &BackendError{Provider: provider, Kind: KindStatus, Status: status, Err: errors.New(body)}
}

func EmptyError(provider string) error {
	return &BackendError{Provider: provider, Kind: KindEmpty, Err: errors.New("empty response")}
}

// IsTimeout reports whether err is a timed-out backend call.
func IsTimeout(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == KindTimeout
}
