package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrMissingClientID is returned before any request is made when no credential is configured.
	ErrMissingClientID = errors.New("twitch client id is empty")
	// ErrUnauthorized matches a StatusError carrying 401 or 403.
	ErrUnauthorized = errors.New("twitch rejected credentials")
)

// StatusError is a non-2xx Helix response.
type StatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("helix %s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("helix %s: %d %s: %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Is reports auth failures as ErrUnauthorized.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// TransportError wraps network failures, timeouts and token fetch failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("helix %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a 2xx response whose body is not the expected JSON.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("helix %s: decode response: %v", e.Path, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorClass groups Helix client errors for logging and metrics labels.
type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	// ErrorClassAuth is a 401/403 from Helix.
	ErrorClassAuth
	// ErrorClassTransport is a network failure or timeout.
	ErrorClassTransport
	// ErrorClassStatus is any other non-2xx response.
	ErrorClassStatus
	// ErrorClassDecode is a malformed response body.
	ErrorClassDecode
	// ErrorClassConfig means the client was never able to send a request.
	ErrorClassConfig
	// ErrorClassCanceled means the caller's context ended the request.
	ErrorClassCanceled
)

// String returns the label used in logs and metrics.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassAuth:
		return "auth"
	case ErrorClassTransport:
		return "transport"
	case ErrorClassStatus:
		return "status"
	case ErrorClassDecode:
		return "decode"
	case ErrorClassConfig:
		return "config"
	case ErrorClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ClassifyError maps an error returned by HelixClient to an ErrorClass.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassCanceled
	}
	if errors.Is(err, ErrMissingClientID) {
		return ErrorClassConfig
	}
	if errors.Is(err, ErrUnauthorized) {
		return ErrorClassAuth
	}
	var se *StatusError
	if errors.As(err, &se) {
		return ErrorClassStatus
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return ErrorClassDecode
	}
	var te *TransportError
	var ne net.Error
	if errors.As(err, &te) || errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransport
	}
	return ErrorClassUnknown
}
