package services

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError means the inbound request carried nothing usable.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

// ResolutionError means no video identifier could be extracted from a URL.
type ResolutionError struct{ URL string }

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not extract a video id from %q", e.URL)
}

// UpstreamUnavailableError means every candidate endpoint failed before
// producing a response. Err is the first connection error encountered.
type UpstreamUnavailableError struct {
	Candidate string
	Err       error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable (%s): %v", e.Candidate, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// UpstreamApplicationError is a reached candidate answering with a
// non-success, non-404 status.
type UpstreamApplicationError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *UpstreamApplicationError) Error() string {
	phrase := strings.TrimSpace(strings.TrimPrefix(e.Status, fmt.Sprint(e.StatusCode)))
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend error %d %s", e.StatusCode, phrase)
	}
	return fmt.Sprintf("backend error %d %s: %s", e.StatusCode, phrase, body)
}

// ErrEmptyUpstreamBody is a success status that arrived without any body.
var ErrEmptyUpstreamBody = errors.New("backend returned a success status without a response body")

// IsClientError reports whether err should be answered with 400.
func IsClientError(err error) bool {
	var validation *ValidationError
	var resolution *ResolutionError
	return errors.As(err, &validation) || errors.As(err, &resolution)
}
