package feed

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds. A *FeedError wraps exactly one of these
// so callers can branch with errors.Is.
var (
	ErrFetch   = errors.New("fetch failure")
	ErrParse   = errors.New("parse failure")
	ErrPersist = errors.New("persistence failure")
)

// FeedError is a failure scoped to a single feed within an ingestion pass.
type FeedError struct {
	Kind error  // one of ErrFetch, ErrParse, ErrPersist
	URL  string // feed URL
	Err  error  // underlying cause
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *FeedError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindName returns a short stable label for logs and reports.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrPersist):
		return "persist"
	}
	return "unknown"
}

// ErrHTTP wraps a non-success HTTP response.
type ErrHTTP struct {
	StatusCode int
	Status     string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %s", e.Status)
}

func fetchErr(url string, err error) error {
	return &FeedError{Kind: ErrFetch, URL: url, Err: err}
}

func parseErr(url string, err error) error {
	return &FeedError{Kind: ErrParse, URL: url, Err: err}
}

// PersistError wraps a storage failure for url.
func PersistError(url string, err error) error {
	return &FeedError{Kind: ErrPersist, URL: url, Err: err}
}
