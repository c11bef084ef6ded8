package gateway

import (
	"errors"
	"fmt"
)

// Status reports how a gateway call ended.
type Status string

const (
	StatusOK               Status = "ok"
	StatusExtractionFailed Status = "extraction_failed"
	StatusUpstreamError    Status = "upstream_error"
)

// Result is the outcome of one model call. Parsed is nil when extraction
// failed, which is distinct from an empty but valid object.
type Result struct {
	ID         string         `json:"id"`
	PromptType string         `json:"prompt_type"`
	Raw        string         `json:"raw_response"`
	Parsed     map[string]any `json:"parsed_result"`
	Status     Status         `json:"status"`
	Err        error          `json:"-"`
}

// ErrorKind separates failures the gateway may retry from ones it must not.
type ErrorKind int

const (
	// Transient covers rate limits, timeouts, and flaky upstreams.
	Transient ErrorKind = iota
	// Permanent covers auth failures and invalid requests.
	Permanent
)

// Error is an upstream model failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == Transient {
		return fmt.Sprintf("transient upstream error: %v", e.Err)
	}
	return fmt.Sprintf("permanent upstream error: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == Transient
}

// ErrExtraction marks a response that arrived but could not be parsed into
// the expected schema.
var ErrExtraction = errors.New("response extraction failed")
