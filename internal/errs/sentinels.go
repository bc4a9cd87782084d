// Package errs contains sentinel errors shared by the session, polling and
// download layers so callers can classify failures with errors.Is.
package errs

import "errors"

var (
	// ErrTransport indicates a network or HTTP failure on a single request.
	ErrTransport = errors.New("transport failure")

	// ErrAuthentication indicates credentials were submitted but the
	// storefront still reports the session as logged out.
	ErrAuthentication = errors.New("authentication failed")

	// ErrCatalog indicates a listing page could not be fetched or parsed.
	ErrCatalog = errors.New("catalog read failed")

	// ErrGenerationFailed indicates the storefront reported an unrecoverable
	// preparation error for a file.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrGenerationExhausted indicates the poll budget ran out before the
	// file became ready.
	ErrGenerationExhausted = errors.New("generation exhausted")

	// ErrSizeRejected indicates a file larger than the configured ceiling.
	ErrSizeRejected = errors.New("size rejected")

	// ErrDownload indicates a transport or filesystem failure while fetching
	// file content.
	ErrDownload = errors.New("download failed")

	// ErrUnknownPlaceholder indicates a URL template token without a value.
	ErrUnknownPlaceholder = errors.New("unknown placeholder")

	// ErrUnknownStorefront indicates an account names an unregistered storefront.
	ErrUnknownStorefront = errors.New("unknown storefront")

	// ErrMissingURL indicates an account lacks a URL template its storefront needs.
	ErrMissingURL = errors.New("missing url template")
)
