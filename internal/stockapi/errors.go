package stockapi

import (
	"errors"
	"fmt"
	"net/http"
)

// --- Sentinel errors ---

// ErrStockNotFound is matched by every non-2xx response from the data service.
var ErrStockNotFound = errors.New("stock not found")

// ErrTransport is matched when the request never produced a response.
var ErrTransport = errors.New("data service unreachable")

// ErrMalformedResponse is returned when a 2xx body is not a valid snapshot.
var ErrMalformedResponse = errors.New("malformed stock response")

// ErrEmptySymbol is returned before any request when the symbol is empty.
var ErrEmptySymbol = errors.New("empty symbol")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Symbol     string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stock not found: %s (HTTP %d)", e.Symbol, e.StatusCode)
}

// Is makes every StatusError match ErrStockNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrStockNotFound
}

// NotFound reports whether the service answered 404 specifically.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// TransportError wraps network, timeout and cancellation failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
