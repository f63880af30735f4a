// Package apierror defines the error vocabulary shared by the schema
// layer and the HTTP boundary. Every validation or lookup failure in
// this module is an *Error carrying an HTTP status, a stable machine
// code and, whenever the failure can be traced to a document member,
// a JSON Pointer into the offending document.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/grantwwu/jsonapi/jsonpointer"
)

// Stable machine codes for the error taxonomy. The constructors below
// are the canonical way to produce them.
const (
	CodeInvalidType          = "invalid_type"
	CodeInvalidValue         = "invalid_value"
	CodeInvalidOperation     = "invalid_operation"
	CodeConflict             = "conflict"
	CodeNotFound             = "not_found"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeRequestTooLarge      = "request_too_large"
	CodeNotImplemented       = "not_implemented"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeNotAcceptable        = "not_acceptable"
	CodeConfiguration        = "configuration_error"
	CodeInternal             = "internal_error"
)

// Error is a JSON:API error object represented as a Go error.
type Error struct {
	// Status is the HTTP status code this error maps to.
	Status int

	// Code is the stable, machine-readable error code.
	Code string

	// Title is a short, occurrence-independent summary.
	Title string

	// Detail explains this specific occurrence.
	Detail string

	// Source locates the document member that caused the error, if any.
	Source jsonpointer.Pointer

	// SourceParameter names the query parameter that caused the error,
	// if any. Source and SourceParameter are mutually exclusive.
	SourceParameter string

	// Meta carries additional, non-standard information.
	Meta map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Detail != "" && !e.Source.IsRoot():
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Detail, e.Source)
	case e.Detail != "" && e.SourceParameter != "":
		return fmt.Sprintf("%s: %s (parameter %q)", e.Code, e.Detail, e.SourceParameter)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	default:
		return e.Code
	}
}

// WithParameter sets the source query parameter and clears the source
// pointer. It returns e for chaining.
func (e *Error) WithParameter(param string) *Error {
	e.SourceParameter = param
	e.Source = ""
	return e
}

// WithMeta adds a meta member to the error. It returns e for chaining.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// MarshalJSON encodes e as a JSON:API error object. The status member
// is a string per the JSON:API specification.
func (e *Error) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 6)
	if e.Status != 0 {
		obj["status"] = strconv.Itoa(e.Status)
	}
	if e.Code != "" {
		obj["code"] = e.Code
	}
	if e.Title != "" {
		obj["title"] = e.Title
	}
	if e.Detail != "" {
		obj["detail"] = e.Detail
	}
	if !e.Source.IsRoot() {
		obj["source"] = map[string]any{"pointer": e.Source.String()}
	} else if e.SourceParameter != "" {
		obj["source"] = map[string]any{"parameter": e.SourceParameter}
	}
	if len(e.Meta) > 0 {
		obj["meta"] = e.Meta
	}
	return json.Marshal(obj)
}

// InvalidType reports a document member with the wrong JSON type
// ("expected an object, got a string").
func InvalidType(detail string, sp jsonpointer.Pointer) *Error {
	return &Error{
		Status: http.StatusBadRequest,
		Code:   CodeInvalidType,
		Title:  "Invalid type",
		Detail: detail,
		Source: sp,
	}
}

// InvalidValue reports a member of the right type whose value is
// semantically invalid: bounds, pattern, enum membership, a missing
// required member or a malformed resource identifier.
func InvalidValue(detail string, sp jsonpointer.Pointer) *Error {
	return &Error{
		Status: http.StatusBadRequest,
		Code:   CodeInvalidValue,
		Title:  "Invalid value",
		Detail: detail,
		Source: sp,
	}
}

// InvalidOperation reports an operation the schema forbids, such as
// writing a read-only field or adding to a to-one relationship.
func InvalidOperation(detail string, sp jsonpointer.Pointer) *Error {
	return &Error{
		Status: http.StatusForbidden,
		Code:   CodeInvalidOperation,
		Title:  "Invalid operation",
		Detail: detail,
		Source: sp,
	}
}

// Conflict reports a document that contradicts its endpoint, such as
// an update whose id does not match the addressed resource.
func Conflict(detail string, sp jsonpointer.Pointer) *Error {
	return &Error{
		Status: http.StatusConflict,
		Code:   CodeConflict,
		Title:  "Conflict",
		Detail: detail,
		Source: sp,
	}
}

// NotFound reports a missing resource or relative.
func NotFound(detail string) *Error {
	return &Error{
		Status: http.StatusNotFound,
		Code:   CodeNotFound,
		Title:  "Not found",
		Detail: detail,
	}
}

// MethodNotAllowed reports an HTTP method the endpoint does not
// support.
func MethodNotAllowed(detail string) *Error {
	return &Error{
		Status: http.StatusMethodNotAllowed,
		Code:   CodeMethodNotAllowed,
		Title:  "Method not allowed",
		Detail: detail,
	}
}

// RequestTooLarge reports a request body exceeding the size limit.
func RequestTooLarge(detail string) *Error {
	return &Error{
		Status: http.StatusRequestEntityTooLarge,
		Code:   CodeRequestTooLarge,
		Title:  "Request entity too large",
		Detail: detail,
	}
}

// NotImplemented reports an operation that was invoked without the
// collaborator hook it requires (for example delete without a Deleter).
func NotImplemented(detail string) *Error {
	return &Error{
		Status: http.StatusNotImplemented,
		Code:   CodeNotImplemented,
		Title:  "Not implemented",
		Detail: detail,
	}
}

// UnsupportedMediaType reports a request body whose Content-Type is
// not the JSON:API media type, or carries media type parameters.
func UnsupportedMediaType(detail string) *Error {
	return &Error{
		Status: http.StatusUnsupportedMediaType,
		Code:   CodeUnsupportedMediaType,
		Title:  "Unsupported media type",
		Detail: detail,
	}
}

// NotAcceptable reports an Accept header that requests the JSON:API
// media type only with media type parameters.
func NotAcceptable(detail string) *Error {
	return &Error{
		Status: http.StatusNotAcceptable,
		Code:   CodeNotAcceptable,
		Title:  "Not acceptable",
		Detail: detail,
	}
}

// Configuration reports a schema definition defect. These surface
// while an application wires its schemas, never from client input.
func Configuration(format string, args ...any) *Error {
	return &Error{
		Status: http.StatusInternalServerError,
		Code:   CodeConfiguration,
		Title:  "Configuration error",
		Detail: fmt.Sprintf(format, args...),
	}
}

// Internal reports an unexpected server-side failure.
func Internal(detail string) *Error {
	return &Error{
		Status: http.StatusInternalServerError,
		Code:   CodeInternal,
		Title:  "Internal server error",
		Detail: detail,
	}
}

// is reports whether err is an *Error with the given code.
func is(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsInvalidType reports whether err is an invalid_type error.
func IsInvalidType(err error) bool { return is(err, CodeInvalidType) }

// IsInvalidValue reports whether err is an invalid_value error.
func IsInvalidValue(err error) bool { return is(err, CodeInvalidValue) }

// IsInvalidOperation reports whether err is an invalid_operation error.
func IsInvalidOperation(err error) bool { return is(err, CodeInvalidOperation) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return is(err, CodeConflict) }

// IsNotFound reports whether err is a not_found error.
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsNotImplemented reports whether err is a not_implemented error.
func IsNotImplemented(err error) bool { return is(err, CodeNotImplemented) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return is(err, CodeConfiguration) }

// StatusOf returns the HTTP status for err: the Status of the first
// *Error in its chain, the collective Status of an ErrorList, or 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	var list ErrorList
	if errors.As(err, &list) {
		return list.Status()
	}
	return http.StatusInternalServerError
}
