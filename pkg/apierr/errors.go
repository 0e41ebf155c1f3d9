// Package apierr provides API exceptions with a fixed status and default
// message, and the {"errors": [...]} envelope every error response uses.
package apierr

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/actionkit/core/validation"
)

// Error is an API exception. Handlers and filters return it to choose the
// status code of the error response.
type Error struct {
	Status  int
	Code    string
	Message string
	Field   string
	Extra   map[string]any
	Headers http.Header

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status.
func (e *Error) StatusCode() int { return e.Status }

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Items returns the envelope entries for the error.
func (e *Error) Items() []Item {
	return []Item{{Message: e.Message, Field: e.Field, Code: e.Code, Extra: e.Extra}}
}

// WithHeader returns a copy of e that also sets a response header.
func (e *Error) WithHeader(key, value string) *Error {
	c := *e
	c.Headers = e.Headers.Clone()
	if c.Headers == nil {
		c.Headers = make(http.Header)
	}
	c.Headers.Set(key, value)
	return &c
}

// Builder provides a fluent API for building errors.
type Builder struct {
	err Error
}

// New creates a Builder with the given status, code and message.
func New(status int, code, message string) *Builder {
	return &Builder{err: Error{Status: status, Code: code, Message: message}}
}

// Messagef replaces the message.
func (b *Builder) Messagef(format string, args ...any) *Builder {
	b.err.Message = fmt.Sprintf(format, args...)
	return b
}

// Field names the input field the error is about.
func (b *Builder) Field(name string) *Builder {
	b.err.Field = name
	return b
}

// Extra adds a key to the envelope entry.
func (b *Builder) Extra(key string, value any) *Builder {
	if b.err.Extra == nil {
		b.err.Extra = make(map[string]any)
	}
	b.err.Extra[key] = value
	return b
}

// Header adds a response header.
func (b *Builder) Header(key, value string) *Builder {
	if b.err.Headers == nil {
		b.err.Headers = make(http.Header)
	}
	b.err.Headers.Add(key, value)
	return b
}

// Cause records the underlying error for logs. It never reaches the client.
func (b *Builder) Cause(err error) *Builder {
	b.err.cause = err
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

func orDefault(detail, fallback string) string {
	if detail == "" {
		return fallback
	}
	return detail
}

// ParseError is returned when a request body cannot be decoded.
func ParseError(detail string) *Error {
	return New(http.StatusBadRequest, "parse_error", orDefault(detail, "Malformed request.")).Build()
}

// AuthenticationFailed is returned when credentials were supplied but are
// wrong.
func AuthenticationFailed(detail string) *Error {
	return New(http.StatusUnauthorized, "authentication_failed",
		orDefault(detail, "Incorrect authentication credentials.")).Build()
}

// NotAuthenticated is returned when a filter requires credentials the
// request did not carry.
func NotAuthenticated(detail string) *Error {
	return New(http.StatusUnauthorized, "not_authenticated",
		orDefault(detail, "Authentication credentials were not provided.")).Build()
}

// PermissionDenied is a 403.
func PermissionDenied(detail string) *Error {
	return New(http.StatusForbidden, "permission_denied",
		orDefault(detail, "You do not have permission to perform this action.")).Build()
}

// NotFound is a 404.
func NotFound(detail string) *Error {
	return New(http.StatusNotFound, "not_found", orDefault(detail, "Not found.")).Build()
}

// MethodNotAllowed is a 405. The allowed methods, when known, are sent in
// the Allow header.
func MethodNotAllowed(method string, allowed []string) *Error {
	b := New(http.StatusMethodNotAllowed, "method_not_allowed", "").
		Messagef("Method %q not allowed.", method)
	if len(allowed) > 0 {
		b.Header("Allow", strings.Join(allowed, ", "))
	}
	return b.Build()
}

// NotAcceptable is returned when no renderer satisfies the Accept header.
func NotAcceptable() *Error {
	return New(http.StatusNotAcceptable, "not_acceptable", "Could not satisfy the request Accept header.").Build()
}

// UnsupportedMediaType is returned when no parser handles the request
// Content-Type.
func UnsupportedMediaType(mediaType string) *Error {
	return New(http.StatusUnsupportedMediaType, "unsupported_media_type", "").
		Messagef("Unsupported media type %q in request.", mediaType).
		Extra("media_type", mediaType).
		Build()
}

// Throttled is a 429. A positive wait is advertised in Retry-After.
func Throttled(wait time.Duration) *Error {
	b := New(http.StatusTooManyRequests, "throttled", "Request was throttled.")
	if wait > 0 {
		secs := int(math.Ceil(wait.Seconds()))
		b.Messagef("Request was throttled. Expected available in %d seconds.", secs).
			Header("Retry-After", fmt.Sprint(secs))
	}
	return b.Build()
}

// ServerError is the generic 500. Its envelope entry carries no code so
// nothing about the failure leaks to the client.
func ServerError(detail string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: orDefault(detail, "A server error occurred.")}
}

// StatusCoder is implemented by native HTTP errors that carry their own
// status.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps any error to its status code and envelope entries.
//
// *Error keeps its status, validation errors become 400 with one entry per
// failing field, other errors implementing StatusCoder keep their status
// and message. Everything else reports ok=false and must be handled as an
// unexpected failure.
func Classify(err error) (status int, items []Item, ok bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Items(), true
	}
	if verr, isValidation := validation.As(err); isValidation {
		return http.StatusBadRequest, ValidationItems(verr), true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		if code < 400 || code > 599 {
			return 0, nil, false
		}
		msg := err.Error()
		if msg == "" {
			msg = http.StatusText(code)
		}
		return code, []Item{{Message: msg}}, true
	}
	return 0, nil, false
}

// HeadersOf returns the response headers an error asks for.
func HeadersOf(err error) http.Header {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Headers
	}
	return nil
}
