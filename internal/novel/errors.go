package novel

import (
	"errors"
	"fmt"
)

// ErrMetadataMissing is returned when a series page lacks a required field.
var ErrMetadataMissing = errors.New("series metadata missing")

// ResolutionError reports an input URL that cannot be resolved to a series.
type ResolutionError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.URL, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TocError reports a failed table-of-contents retrieval.
type TocError struct {
	URL string
	Err error
}

func (e *TocError) Error() string {
	return fmt.Sprintf("load table of contents from %s: %v", e.URL, e.Err)
}

func (e *TocError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-successful HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// CheckStatus returns a StatusError for responses outside the 2xx range.
func CheckStatus(rawURL string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &StatusError{URL: rawURL, StatusCode: code}
}
