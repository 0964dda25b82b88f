package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	// KindConfiguration is a missing or invalid credential, index location or setting.
	KindConfiguration ErrorKind = "configuration"
	// KindInvalidQuery is a query rejected at the pipeline boundary.
	KindInvalidQuery ErrorKind = "invalid_query"
	// KindRetrieval is an embedder or vector index failure.
	KindRetrieval ErrorKind = "retrieval"
	// KindAdequacy means no sufficiently relevant passages were found.
	KindAdequacy ErrorKind = "adequacy"
	// KindTemplate is a malformed prompt construction.
	KindTemplate ErrorKind = "template"
	// KindGeneration is a failed model call.
	KindGeneration ErrorKind = "generation"
)

// SubKind refines an ErrorKind. Timeouts and cancellation apply to every stage.
type SubKind string

const (
	SubKindNone              SubKind = ""
	SubKindTimeout           SubKind = "timeout"
	SubKindCanceled          SubKind = "canceled"
	SubKindAuth              SubKind = "auth"
	SubKindRateLimit         SubKind = "rate_limit"
	SubKindMalformedResponse SubKind = "malformed_response"
	SubKindUnavailable       SubKind = "unavailable"
)

// Stage is a state of the query pipeline.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageEmbedding  Stage = "embedding"
	StageRetrieving Stage = "retrieving"
	StageAdequacy   Stage = "adequacy_check"
	StageAssembling Stage = "assembling"
	StagePrompting  Stage = "prompting"
	StageGenerating Stage = "generating"
	StageSucceeded  Stage = "succeeded"
	StageFailed     Stage = "failed"
)

// Sentinels matched by *Error through errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrRetrieval     = errors.New("retrieval error")
	ErrAdequacy      = errors.New("no sufficiently relevant passages found")
	ErrTemplate      = errors.New("template error")
	ErrGeneration    = errors.New("generation error")

	ErrTimeout           = errors.New("timeout")
	ErrCanceled          = errors.New("canceled")
	ErrAuth              = errors.New("authentication failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnavailable       = errors.New("service unavailable")
)

var kindSentinels = map[ErrorKind]error{
	KindConfiguration: ErrConfiguration,
	KindInvalidQuery:  ErrInvalidQuery,
	KindRetrieval:     ErrRetrieval,
	KindAdequacy:      ErrAdequacy,
	KindTemplate:      ErrTemplate,
	KindGeneration:    ErrGeneration,
}

var subKindSentinels = map[SubKind]error{
	SubKindTimeout:           ErrTimeout,
	SubKindCanceled:          ErrCanceled,
	SubKindAuth:              ErrAuth,
	SubKindRateLimit:         ErrRateLimited,
	SubKindMalformedResponse: ErrMalformedResponse,
	SubKindUnavailable:       ErrUnavailable,
}

// Error is the only error type that crosses the pipeline boundary.
// Message is safe to show to a user; Err keeps the underlying cause.
type Error struct {
	Kind    ErrorKind
	SubKind SubKind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.SubKind != SubKindNone {
		b.WriteString("/")
		b.WriteString(string(e.SubKind))
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind or sub-kind.
func (e *Error) Is(target error) bool {
	if s, ok := kindSentinels[e.Kind]; ok && s == target {
		return true
	}
	if s, ok := subKindSentinels[e.SubKind]; ok && s == target {
		return true
	}
	return false
}

// IsTimeout reports whether the failure was a deadline exceeded in any stage.
func (e *Error) IsTimeout() bool { return e.SubKind == SubKindTimeout }

// NewError builds a typed pipeline error.
func NewError(kind ErrorKind, sub SubKind, message string, err error) *Error {
	return &Error{Kind: kind, SubKind: sub, Message: message, Err: err}
}

// ConfigurationError reports a missing or invalid setting. It is fatal and never retried.
func ConfigurationError(message string, err error) *Error {
	return NewError(KindConfiguration, SubKindNone, message, err)
}

// AdequacyFailure reports that retrieval found nothing relevant enough to ground an answer.
func AdequacyFailure() *Error {
	e := NewError(KindAdequacy, SubKindNone, ErrAdequacy.Error(), nil)
	e.Stage = StageAdequacy
	return e
}

// TemplateError reports a prompt that could not be built.
func TemplateError(message string, err error) *Error {
	e := NewError(KindTemplate, SubKindNone, message, err)
	e.Stage = StagePrompting
	return e
}

// GenerationError reports a failed model call with its sub-kind preserved.
func GenerationError(sub SubKind, message string, err error) *Error {
	e := NewError(KindGeneration, sub, message, err)
	e.Stage = StageGenerating
	return e
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StageFailure attributes err to stage. A *Error already in the chain keeps its
// classification and only gains the stage if it had none; context deadline and
// cancellation become the timeout and canceled sub-kinds of kind.
func StageFailure(stage Stage, kind ErrorKind, message string, err error) *Error {
	if e, ok := AsError(err); ok {
		out := *e
		if out.Stage == "" {
			out.Stage = stage
		}
		return &out
	}
	sub := SubKindNone
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		sub = SubKindTimeout
		message = fmt.Sprintf("%s timed out", stage)
	case errors.Is(err, context.Canceled):
		sub = SubKindCanceled
		message = fmt.Sprintf("%s canceled", stage)
	}
	e := NewError(kind, sub, message, err)
	e.Stage = stage
	return e
}

// SubKindForStatus maps a provider HTTP status onto a sub-kind.
func SubKindForStatus(status int) SubKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return SubKindAuth
	case status == http.StatusTooManyRequests:
		return SubKindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return SubKindTimeout
	case status >= 500:
		return SubKindUnavailable
	default:
		return SubKindMalformedResponse
	}
}
