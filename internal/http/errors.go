package http

import (
	"fmt"

	"github.com/handiism/bookshelf-downloader/internal/errs"
)

// StatusError is returned when a storefront answers with a 4xx or 5xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
}

// Unwrap reports a status failure as a transport failure.
func (e *StatusError) Unwrap() error {
	return errs.ErrTransport
}

// TransportError wraps a failure to complete a request at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{errs.ErrTransport, e.Err}
}
