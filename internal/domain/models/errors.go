package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindTransient   ErrorKind = "TransientProviderError"
	KindRateLimit   ErrorKind = "RateLimitError"
	KindPermanent   ErrorKind = "PermanentFetchError"
	KindStorage     ErrorKind = "StorageError"
	KindDataQuality ErrorKind = "DataQualityError"
)

// PipelineError carries an ErrorKind alongside the wrapped cause.
type PipelineError struct {
	Kind       ErrorKind
	Op         string
	Ticker     string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Ticker != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Kind, e.Op, e.Ticker, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, msg)
}

// Unwrap returns underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a classified error for op.
func NewPipelineError(kind ErrorKind, op, message string) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Message: message}
}

// WithTicker sets the affected ticker.
func (e *PipelineError) WithTicker(ticker string) *PipelineError {
	e.Ticker = ticker
	return e
}

// WithError wraps an underlying error.
func (e *PipelineError) WithError(err error) *PipelineError {
	e.Err = err
	return e
}

// WithRetryAfter records a provider supplied retry hint.
func (e *PipelineError) WithRetryAfter(d time.Duration) *PipelineError {
	e.RetryAfter = d
	return e
}

func NewTransientError(op, message string) *PipelineError {
	return NewPipelineError(KindTransient, op, message)
}

func NewRateLimitError(op, message string) *PipelineError {
	return NewPipelineError(KindRateLimit, op, message)
}

func NewPermanentError(op, message string) *PipelineError {
	return NewPipelineError(KindPermanent, op, message)
}

// NewPermanentErrorf creates a PermanentFetchError with formatting.
func NewPermanentErrorf(op, format string, a ...interface{}) *PipelineError {
	return NewPermanentError(op, fmt.Sprintf(format, a...))
}

func NewStorageError(op, message string) *PipelineError {
	return NewPipelineError(KindStorage, op, message)
}

// NewDataQualityErrorf creates a DataQualityError with formatting.
func NewDataQualityErrorf(op, format string, a ...interface{}) *PipelineError {
	return NewPipelineError(KindDataQuality, op, fmt.Sprintf(format, a...))
}

// KindOf returns the ErrorKind of the first PipelineError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// KindOrDefault returns the kind of err or def when err is unclassified.
func KindOrDefault(err error, def ErrorKind) ErrorKind {
	if k, ok := KindOf(err); ok {
		return k
	}
	return def
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindTransient || k == KindRateLimit)
}
