package catalog

import "errors"

var (
	// ErrNetwork marks a category fetch that failed at the transport level
	// (connection, HTTP status, timeout).
	ErrNetwork = errors.New("catalog fetch failed")

	// ErrParse marks a malformed catalog record. Parse failures are isolated
	// per record; a feed with some bad records still yields the good ones.
	ErrParse = errors.New("malformed catalog record")

	// ErrUnknownCategory is returned when a provider has no feed for the
	// requested category.
	ErrUnknownCategory = errors.New("unknown catalog category")
)
