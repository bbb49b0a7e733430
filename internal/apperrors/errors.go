// Package apperrors defines the error kinds surfaced by the HTTP API and
// the envelope they render to. Handlers classify failures into kinds;
// anything unclassified renders as INTERNAL_ERROR with a correlation id
// in the log so user reports can be matched to log lines.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind classifies an error for API rendering
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindNoRoute
	KindInsufficientLiquidity
	KindUpstream
	KindBuildInProgress
)

// Error carries a kind, a user-facing message, and an optional cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest builds a KindBadRequest error
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NoRoute builds a KindNoRoute error
func NoRoute(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNoRoute, Message: fmt.Sprintf(format, args...)}
}

// InsufficientLiquidity builds a KindInsufficientLiquidity error
func InsufficientLiquidity(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInsufficientLiquidity, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failed outbound call
func Upstream(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// BuildInProgress reports that the graph builder holds the build lock
func BuildInProgress() *Error {
	return &Error{Kind: KindBuildInProgress, Message: "graph build already in progress"}
}

// Internal wraps an unexpected failure
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the kind from an error chain; unclassified errors are
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Envelope is the wire shape of an API error
type Envelope struct {
	Error      bool   `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// code and status per kind
func kindCode(k Kind) (string, int) {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST", http.StatusBadRequest
	case KindNotFound:
		return "NOT_FOUND", http.StatusNotFound
	case KindNoRoute:
		return "NO_ROUTE_FOUND", http.StatusNotFound
	case KindInsufficientLiquidity:
		return "INSUFFICIENT_LIQUIDITY", http.StatusUnprocessableEntity
	case KindUpstream:
		return "UPSTREAM_ERROR", http.StatusBadGateway
	case KindBuildInProgress:
		return "BUILD_IN_PROGRESS", http.StatusConflict
	default:
		return "INTERNAL_ERROR", http.StatusInternalServerError
	}
}

// ToEnvelope renders an error chain to its API envelope
func ToEnvelope(err error) Envelope {
	kind := KindOf(err)
	code, status := kindCode(kind)

	message := "internal error"
	var e *Error
	if errors.As(err, &e) {
		message = e.Message
	}

	return Envelope{
		Error:      true,
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}

// WriteJSON renders the error as the API envelope. Unclassified errors are
// logged with a correlation id and rendered as INTERNAL_ERROR without
// leaking the cause.
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, err error) {
	env := ToEnvelope(err)

	if env.Code == "INTERNAL_ERROR" {
		correlationID := uuid.New().String()
		log.Error().
			Err(err).
			Str("correlation_id", correlationID).
			Msg("Unclassified error")
		env.Message = "internal error (ref " + correlationID + ")"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	_ = json.NewEncoder(w).Encode(env)
}
