package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"storefront-checkout/internal/domain"
)

var (
	ErrServerError = errors.New("backend server error")
	ErrBadBody     = errors.New("unparseable response body")
	ErrBadStatus   = errors.New("unexpected response status")
)

// StatusError is a non-2xx answer from the backend.
// Err is domain.ErrRequestRejected, domain.ErrSessionExpired or ErrServerError.
type StatusError struct {
	Tier    Tier
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: %d %s", e.Err, e.Status, msg)
}

func (e *StatusError) Unwrap() error { return e.Err }

// UnreachableError means every tier failed. It unwraps to the primary tier's failure.
type UnreachableError struct {
	Endpoint string
	Primary  error
	Attempts []error
}

func (e *UnreachableError) Error() string {
	if e.Primary == nil {
		return fmt.Sprintf("%s (%s)", domain.ErrBackendUnreachable, e.Endpoint)
	}
	return fmt.Sprintf("%s (%s): %v", domain.ErrBackendUnreachable, e.Endpoint, e.Primary)
}

func (e *UnreachableError) Unwrap() []error {
	if e.Primary == nil {
		return []error{domain.ErrBackendUnreachable}
	}
	return []error{domain.ErrBackendUnreachable, e.Primary}
}

// Message extracts the backend's human message from err, if it carries one.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}
