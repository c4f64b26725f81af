// Package apperrors collects sentinel errors shared across the ingestion
// pipeline so callers can branch with errors.Is instead of string matching.
package apperrors

import "errors"

var (
	// ErrNotFound indicates a lookup found no matching row.
	ErrNotFound = errors.New("not found")

	// ErrNoResults indicates an upstream API call succeeded but returned no
	// usable results (e.g. an author search with zero matches).
	ErrNoResults = errors.New("no results")

	// ErrEmptyResponse indicates an upstream API returned a response body
	// that parsed successfully but carried no payload.
	ErrEmptyResponse = errors.New("empty response")

	// ErrRateLimited indicates an upstream API rejected a request for
	// exceeding its rate limit, distinct from a generic server error.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput indicates a caller supplied a value that fails basic
	// validation before any network or database call is attempted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientNetwork indicates an upstream call failed in a way a
	// retry might recover from: a transport error, a timeout, or a non-2xx
	// response left over after the callee's own retry budget ran out.
	ErrTransientNetwork = errors.New("transient network error")
)
