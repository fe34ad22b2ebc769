package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy. Callers match with errors.Is; KindOf maps an error back to
// its taxonomy name for payloads and Result descriptors.
var (
	ErrProviderUnavailable      = errors.New("provider unavailable")
	ErrRateLimited              = errors.New("rate limited")
	ErrAuthenticationFailed     = errors.New("authentication failed")
	ErrTimeout                  = errors.New("timeout")
	ErrToolExecution            = errors.New("tool execution error")
	ErrMissingRequiredParameter = errors.New("missing required parameter")
	ErrTypeMismatch             = errors.New("type mismatch")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrDuplicateToolName        = errors.New("duplicate tool name")
	ErrTurnLimitExceeded        = errors.New("turn limit exceeded")
	ErrContextOverflow          = errors.New("context overflow")
	ErrSessionLocked            = errors.New("session locked")
	ErrSessionNotFound          = errors.New("session not found")
	ErrGuardrailTripped         = errors.New("guardrail tripped")
	ErrInvalidMessage           = errors.New("invalid message")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrRateLimited, "RateLimited"},
	{ErrAuthenticationFailed, "AuthenticationFailed"},
	{ErrTimeout, "Timeout"},
	{ErrProviderUnavailable, "ProviderUnavailable"},
	{ErrMissingRequiredParameter, "MissingRequiredParameter"},
	{ErrTypeMismatch, "TypeMismatch"},
	{ErrInvalidArgument, "InvalidArgument"},
	{ErrToolExecution, "ToolExecutionError"},
	{ErrDuplicateToolName, "DuplicateToolName"},
	{ErrTurnLimitExceeded, "TurnLimitExceeded"},
	{ErrContextOverflow, "ContextOverflow"},
	{ErrSessionLocked, "SessionLocked"},
	{ErrSessionNotFound, "SessionNotFound"},
	{ErrGuardrailTripped, "GuardrailTripped"},
	{ErrInvalidMessage, "InvalidMessage"},
}

// KindOf returns the taxonomy name of err. Context cancellation and deadline
// errors report as "Timeout" and "Canceled"; anything else is "Internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}
	return "Internal"
}

// IsRetryable reports whether err is a transient provider failure worth
// retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout)
}

// RateLimitError is returned by providers when the backend throttles a call.
// RetryAfter is zero when the backend gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrRateLimited) hold for every *RateLimitError.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Cause }

// RetryAfterHint extracts the retry-after hint carried by err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

// ErrorInfo is the structured error descriptor attached to a failed Result.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorInfo builds a descriptor from err (nil for a nil error).
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Kind: KindOf(err), Message: err.Error()}
}
