package requester

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSignerNotRegistered is wrapped by signing services when a signer id is unknown
var ErrSignerNotRegistered = errors.New("no such signer registered")

// SigningError reports that a request could not be signed
type SigningError struct {
	Signer string
	Err    error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signer %s: %v", e.Signer, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// HTTPStatusError carries a non-2xx status code. Its message is what the
// notification sink receives.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	switch e.Code {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusUnauthorized:
		return "No permission"
	default:
		return fmt.Sprintf("Generic error %d", e.Code)
	}
}

// ParseError reports that a strategy could not interpret a successful response
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "Failed to parse result " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError wraps network and request construction failures
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
