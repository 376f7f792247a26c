// Package apperr defines the error taxonomy shared by the ingestion pipeline,
// the query engine and the HTTP layer. Every error carries a Kind that maps to
// one HTTP status, a human-readable message and an optional cause.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by the pipeline stage or policy that produced it.
type Kind string

const (
	KindParse            Kind = "ParseError"
	KindSchemaConflict   Kind = "SchemaConflictError"
	KindProvision        Kind = "ProvisionError"
	KindCapacityExceeded Kind = "CapacityExceededError"
	KindAuth             Kind = "AuthError"
	KindAuthorization    Kind = "AuthorizationError"
	KindRateLimit        Kind = "RateLimitError"
	KindNotFound         Kind = "NotFoundError"
	KindQuery            Kind = "QueryError"
	KindInvalid          Kind = "ValidationError"
	KindConflict         Kind = "ConflictError"
	KindInternal         Kind = "InternalError"
)

// Sentinels for errors.Is checks. Matching is by Kind only.
var (
	ErrParse            = &Error{Kind: KindParse}
	ErrSchemaConflict   = &Error{Kind: KindSchemaConflict}
	ErrProvision        = &Error{Kind: KindProvision}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrAuth             = &Error{Kind: KindAuth}
	ErrAuthorization    = &Error{Kind: KindAuthorization}
	ErrRateLimit        = &Error{Kind: KindRateLimit}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrQuery            = &Error{Kind: KindQuery}
	ErrInvalid          = &Error{Kind: KindInvalid}
	ErrConflict         = &Error{Kind: KindConflict}
)

// Error is the structured error type used throughout tapfile.
type Error struct {
	Kind    Kind
	Message string
	// Line and Column locate parse failures in the source file (1-based, 0 if unknown).
	Line   int
	Column int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d, column %d)", msg, e.Line, e.Column)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind with an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Parse reports malformed CSV at a known position.
func Parse(line, column int, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindParse, Message: fmt.Sprintf(format, args...), Line: line, Column: column, Err: err}
}

func SchemaConflict(format string, args ...interface{}) *Error {
	return New(KindSchemaConflict, format, args...)
}

func CapacityExceeded(format string, args ...interface{}) *Error {
	return New(KindCapacityExceeded, format, args...)
}

func Query(format string, args ...interface{}) *Error {
	return New(KindQuery, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Invalid reports a malformed management request.
func Invalid(format string, args ...interface{}) *Error {
	return New(KindInvalid, format, args...)
}

// Conflict reports a name already taken by another resource.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindParse, KindQuery, KindInvalid:
		return http.StatusBadRequest
	case KindSchemaConflict, KindConflict:
		return http.StatusConflict
	case KindProvision:
		return http.StatusBadGateway
	case KindCapacityExceeded:
		return http.StatusRequestEntityTooLarge
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
