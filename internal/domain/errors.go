package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrMissingAPIToken = errors.New("replicate api token not configured")
	ErrNotImplemented  = errors.New("not implemented")
)

// ErrorKind classifies failures so callers can decide between retrying,
// surfacing a validation message, or aborting a pipeline.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindValidation        ErrorKind = "validation"
	KindTransientUpstream ErrorKind = "transient_upstream"
	KindUpstreamFailure   ErrorKind = "upstream_failure"
	KindTimeout           ErrorKind = "timeout"
	KindInternal          ErrorKind = "internal"
)

// DefaultPublicMessage is shown when no structured error is available.
const DefaultPublicMessage = "internal server error"

// Error is the structured error carried across adapter and pipeline
// boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	// Status is the upstream HTTP status when one was observed.
	Status int
	// RetryAfter is the upstream's hint for transient failures.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = DefaultPublicMessage
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewConfigurationError(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, Err: err}
}

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewTransientError(msg string, status int, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindTransientUpstream, Message: msg, Status: status, RetryAfter: retryAfter, Err: err}
}

func NewUpstreamFailure(msg string, status int, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Message: msg, Status: status, Err: err}
}

func NewTimeoutError(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindTransientUpstream
}

// RetryAfterOf returns the upstream retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var de *Error
	if errors.As(err, &de) {
		return de.RetryAfter
	}
	return 0
}

// PublicMessage returns the most specific message available for err.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if errors.Is(err, ErrMissingAPIToken) {
		return ErrMissingAPIToken.Error()
	}
	return DefaultPublicMessage
}
