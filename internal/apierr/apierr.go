// Package apierr classifies failures of the generation and publishing adapters.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the classification of an adapter failure
type Kind string

const (
	KindAuth              Kind = "auth"
	KindRateLimit         Kind = "rate_limit"
	KindTransient         Kind = "transient"
	KindMalformedResponse Kind = "malformed_response"
	KindRejected          Kind = "rejected"
)

// Stage names the adapter that failed
type Stage string

const (
	StageGenerate Stage = "generate"
	StagePublish  Stage = "publish"
)

// Error is a classified adapter failure
type Error struct {
	Stage      Stage
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed (%s)", e.Stage, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without an underlying cause
func New(stage Stage, kind Kind, msg string) *Error {
	return &Error{Stage: stage, Kind: kind, Message: msg}
}

// Wrap classifies an underlying error
func Wrap(stage Stage, kind Kind, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Err: err}
}

// KindForStatus maps an HTTP status code to a Kind. 2xx codes map to "".
func KindForStatus(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}

// FromStatus builds an error for a non-2xx HTTP response
func FromStatus(stage Stage, status int, body string) *Error {
	e := &Error{Stage: stage, Kind: KindForStatus(status), StatusCode: status, Message: body}
	switch e.Kind {
	case KindAuth:
		e.Message = "authentication failed, check access token"
	case KindRateLimit:
		if status == http.StatusForbidden {
			e.Message = "insufficient permissions or rate limit exceeded"
		}
	}
	return e
}

// FromTransport classifies a transport-level error. Context cancellation is passed through untouched.
func FromTransport(stage Stage, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return Wrap(stage, KindTransient, err)
}

// KindOf returns the classification of err, or "" when it carries none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the failing stage of err, or "" when it carries none
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// IsAuth reports whether err is an authentication failure
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// IsGeneration reports whether err came from the content generator
func IsGeneration(err error) bool {
	return StageOf(err) == StageGenerate
}

// IsPublish reports whether err came from the publisher
func IsPublish(err error) bool {
	return StageOf(err) == StagePublish
}
