package deriv

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers dial and transport-setup failures.
	ErrConnection = errors.New("deriv: connection failed")
	// ErrConnectionLost fails in-flight requests when the session drops.
	ErrConnectionLost = errors.New("deriv: connection lost")
	// ErrAuth covers rejected or malformed authorization.
	ErrAuth = errors.New("deriv: authentication failed")
	// ErrSafetyViolation is an account-class mismatch against the configured
	// expectation. It must halt the session, never be retried.
	ErrSafetyViolation = errors.New("deriv: account safety violation")
	// ErrRequestTimeout means no correlated response arrived in time.
	ErrRequestTimeout = errors.New("deriv: request timed out")
	// ErrProtocol covers undecodable or broker-rejected payloads.
	ErrProtocol = errors.New("deriv: protocol error")
	// ErrNotReady guards operations called before the required state.
	ErrNotReady = errors.New("deriv: client not ready")
)

// APIError is an error object returned by the broker inside a response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deriv: api error %s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrProtocol }
