package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorKind classifies a pipeline failure so callers can map it to an HTTP
// status or a degraded result without string-matching messages.
type ErrorKind string

const (
	// Ingestion path, surfaced to clients as 4xx.
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindPayloadTooLarge   ErrorKind = "payload_too_large"
	KindDecodeFailed      ErrorKind = "decode_failed"
	KindParseFailed       ErrorKind = "parse_failed"
	KindExtractionFailed  ErrorKind = "extraction_failed"

	// ANN path. Fatal for ingestion; queries downgrade to an empty-context
	// answer instead of failing.
	KindIndexUnavailable ErrorKind = "index_unavailable"
	KindUpsertFailed     ErrorKind = "upsert_failed"
	KindQueryFailed      ErrorKind = "query_failed"

	// Never surfaced; always downgraded to the keyword fallback.
	KindClassificationFailed ErrorKind = "classification_failed"

	// LLM / embedding endpoints.
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindModelTimeout     ErrorKind = "model_timeout"

	// Client disconnect. Swallowed, never logged as an error.
	KindCanceled ErrorKind = "canceled"

	// Internal logic bug.
	KindInvariantViolation ErrorKind = "invariant_violation"
)

// PipelineError carries the kind, the component that produced it and the
// wrapped cause.
type PipelineError struct {
	Kind      ErrorKind
	Component string
	Message   string
	Err       error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Component, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError builds a PipelineError with a component tag.
func NewError(kind ErrorKind, component, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Component: component, Message: message, Err: err}
}

// KindOf reports the ErrorKind of err, unwrapping as needed. Errors outside
// the taxonomy report KindInvariantViolation.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInvariantViolation
}

// IsKind reports whether err (or any wrapped error) carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// StatusForKind maps a kind to the HTTP status used on the ingestion path.
func StatusForKind(kind ErrorKind) int {
	switch kind {
	case KindUnsupportedFormat, KindDecodeFailed, KindParseFailed, KindExtractionFailed:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithPipelineError maps a taxonomy error to its status and sends the
// standard body. Unknown errors become 500 internal_error.
func RespondWithPipelineError(c *gin.Context, err error) {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		RespondWithInternalError(c, err.Error(), nil)
		return
	}
	RespondWithError(c, StatusForKind(pe.Kind), string(pe.Kind), pe.Message, gin.H{
		"component": pe.Component,
	})
}
