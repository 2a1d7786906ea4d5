package client

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is returned when no HTTP response was received, or the
// response could not be read: refused connections, DNS failures, timeouts.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("post %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is returned for any non-2xx response. Body holds the
// response body verbatim.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// DecodeError is returned when a 2xx body is not a JSON document.
type DecodeError struct {
	Body string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("response is not json: %.200q", e.Body)
}

// Retryable reports whether err is worth another attempt: transport
// failures and 5xx responses.
func Retryable(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return true
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode >= 500
	}
	return false
}

// Detail is the text recorded for a failed call. For status errors that
// is the body as the service sent it.
func Detail(err error) string {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Body
	}
	return err.Error()
}

// StatusCode is the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode
	}
	return 0
}
