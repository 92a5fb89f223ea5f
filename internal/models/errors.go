package models

import (
	"fmt"
	"net/http"
)

// Stable rejection reason codes surfaced in error payloads.
const (
	CodeRateLimited   = "rate_limited"
	CodeDailyLimit    = "daily_limit_exceeded"
	CodeSourceBlocked = "source_blocked"
	CodeInvalidInput  = "invalid_input"
	CodeServerError   = "server_error"
)

// IngestError represents a caller-visible rejection of a session submission.
// It implements the error interface and carries a stable machine-readable
// reason code plus a safe human-readable description. Descriptions never echo
// submitted content.
type IngestError struct {
	// Code is the stable rejection reason (e.g., "rate_limited", "invalid_input").
	Code string `json:"error"`
	// Description provides additional human-readable error information.
	Description string `json:"error_description,omitempty"`
	// Subkind distinguishes invalid-input variants for internal classification
	// (excluded from JSON; surfaced only through security event details).
	Subkind string `json:"-"`
	// StatusCode is the HTTP status code to return (excluded from JSON).
	StatusCode int `json:"-"`
}

// Error returns a string representation of the ingestion error.
// It implements the error interface.
func (e *IngestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// NewRateLimited creates an IngestError for a source that exceeded the
// per-minute sliding window. Returns HTTP 429 Too Many Requests.
func NewRateLimited() *IngestError {
	return &IngestError{
		Code:        CodeRateLimited,
		Description: "Rate limit exceeded. Try again later.",
		StatusCode:  http.StatusTooManyRequests,
	}
}

// NewDailyLimit creates an IngestError for a source that reached the daily
// accepted-session cap. Returns HTTP 429 Too Many Requests.
func NewDailyLimit() *IngestError {
	return &IngestError{
		Code:        CodeDailyLimit,
		Description: "Daily session limit reached. Try again tomorrow.",
		StatusCode:  http.StatusTooManyRequests,
	}
}

// NewSourceBlocked creates an IngestError for a source under an active block.
// Returns HTTP 403 Forbidden.
func NewSourceBlocked() *IngestError {
	return &IngestError{
		Code:        CodeSourceBlocked,
		Description: "Access temporarily blocked.",
		StatusCode:  http.StatusForbidden,
	}
}

// NewInvalidInput creates an IngestError for a malformed or out-of-bounds
// submission. The subkind classifies the failure for abuse tracking; the
// description stays generic per field. Returns HTTP 400 Bad Request.
func NewInvalidInput(subkind, description string) *IngestError {
	return &IngestError{
		Code:        CodeInvalidInput,
		Description: description,
		Subkind:     subkind,
		StatusCode:  http.StatusBadRequest,
	}
}

// NewServerError creates an IngestError for an unexpected internal failure.
// No internal detail is exposed to the caller. Returns HTTP 500.
func NewServerError() *IngestError {
	return &IngestError{
		Code:        CodeServerError,
		Description: "An unexpected error occurred",
		StatusCode:  http.StatusInternalServerError,
	}
}

// Invalid-input subkinds. Distinct subkinds from one source within the probing
// window indicate systematic probing.
const (
	SubkindMalformedBody      = "malformed_body"
	SubkindDurationMissing    = "duration_missing"
	SubkindDurationNotInteger = "duration_not_integer"
	SubkindDurationOutOfRange = "duration_out_of_range"
	SubkindTimestampInvalid   = "timestamp_invalid"
	SubkindTimestampOutOfSkew = "timestamp_out_of_skew"
)
