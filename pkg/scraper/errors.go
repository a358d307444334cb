package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/cac-scouting/scout-engine/pkg/retry"
)

// Callers treat both as non-fatal: nothing is written and the user is told
// the source could not be read.
var (
	// ErrSourceUnreachable means the page could not be fetched.
	ErrSourceUnreachable = errors.New("source unreachable")
	// ErrUnrecognizedLayout means the page was fetched but did not have the expected structure.
	ErrUnrecognizedLayout = errors.New("unrecognized page layout")
)

// fetchError describes a failed GET. Status is zero for transport failures.
type fetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *fetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *fetchError) Unwrap() error { return e.Err }

func (e *fetchError) Is(target error) bool { return target == ErrSourceUnreachable }

// IsRetryable retries server errors, throttling and transient transport failures.
func (e *fetchError) IsRetryable() bool {
	if e.Status > 0 {
		return e.Status >= 500 || e.Status == 429
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	return retry.IsRetryable(e.Err)
}

func layoutError(url, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", url, fmt.Sprintf(format, args...), ErrUnrecognizedLayout)
}
