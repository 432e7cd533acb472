package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic checks with errors.Is.
var (
	// ErrFetch indicates the initial snapshot fetch failed. Fetch failures
	// are fatal: nothing is classified and the run aborts.
	ErrFetch = errors.New("fetch failed")

	// ErrMalformedResponse indicates the model returned output that is not
	// well-formed structured data.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrRateLimited indicates the external API rejected a call due to rate
	// limiting.
	ErrRateLimited = errors.New("rate limited")
)

// FetchError wraps a failure reading the repository or list snapshot.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// BatchError records the failure of a single classification batch. It is an
// isolation boundary, not a run failure: the batch degrades to uncategorized
// assignments and the run continues.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("classification batch %d: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ValidationError describes a structurally parseable model response that
// violates the response contract (missing or duplicated repos, confidence
// out of range, unknown category). It triggers one corrective retry.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid model response: " + strings.Join(e.Problems, "; ")
}

// MutationError records the failure of applying a single Operation. Other
// operations are unaffected; the final report lists these explicitly.
type MutationError struct {
	Op  Operation
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("applying %s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
