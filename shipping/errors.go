package shipping

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse is returned when a 2xx body lacks the expected shape.
	ErrMalformedResponse = errors.New("shipping: malformed response")
	// ErrMissingCredentials is returned by Login when email or password is empty.
	ErrMissingCredentials = errors.New("shipping: seller email and password are required")
)

// APIError is a non-2xx response from the upstream API. Message is taken from
// the response's "message" field when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("shipping: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("shipping: upstream status %d: %s", e.StatusCode, e.Message)
}
