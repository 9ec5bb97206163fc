package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the domain layer.
var (
	// Stream lifecycle errors.
	ErrStreamTimeout    = fmt.Errorf("stream idle timeout")
	ErrStreamAborted    = fmt.Errorf("stream aborted")
	ErrStreamClosed     = fmt.Errorf("stream closed")
	ErrProtocolDecode   = fmt.Errorf("protocol decode failed")
	ErrResponseFailed   = fmt.Errorf("response reported failure")
	ErrIncompleteStream = fmt.Errorf("stream ended before completion")

	// Request/transport errors.
	ErrRateLimited     = fmt.Errorf("rate limit exceeded")
	ErrAuthFailed      = fmt.Errorf("authentication failed")
	ErrServerError     = fmt.Errorf("server error")
	ErrNetwork         = fmt.Errorf("network error")
	ErrRetryExhausted  = fmt.Errorf("retry attempts exhausted")
	ErrContextOverflow = fmt.Errorf("context window exceeded")

	// Input validation errors.
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrInvalidUsage = fmt.Errorf("invalid token usage record")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Stream.Next")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// HTTPStatusError is returned by the wire client when the server answers a
// request with a non-2xx status before any stream body was consumed.
// RetryAfter is zero when the server sent no retry-after header.
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Detail     string
}

func (e *HTTPStatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Unwrap maps the status onto the matching category sentinel so callers can
// use errors.Is without inspecting the code themselves.
func (e *HTTPStatusError) Unwrap() error {
	switch {
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrAuthFailed
	case e.StatusCode == 413:
		return ErrContextOverflow
	case e.StatusCode >= 500:
		return ErrServerError
	default:
		return nil
	}
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeStreamTimeout    ErrorCode = "STREAM_TIMEOUT"
	CodeStreamAborted    ErrorCode = "STREAM_ABORTED"
	CodeStreamClosed     ErrorCode = "STREAM_CLOSED"
	CodeProtocolDecode   ErrorCode = "PROTOCOL_DECODE"
	CodeResponseFailed   ErrorCode = "RESPONSE_FAILED"
	CodeIncompleteStream ErrorCode = "INCOMPLETE_STREAM"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeServerError      ErrorCode = "SERVER_ERROR"
	CodeNetwork          ErrorCode = "NETWORK"
	CodeRetryExhausted   ErrorCode = "RETRY_EXHAUSTED"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeInvalidUsage     ErrorCode = "INVALID_USAGE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrStreamTimeout:    CodeStreamTimeout,
	ErrStreamAborted:    CodeStreamAborted,
	ErrStreamClosed:     CodeStreamClosed,
	ErrProtocolDecode:   CodeProtocolDecode,
	ErrResponseFailed:   CodeResponseFailed,
	ErrIncompleteStream: CodeIncompleteStream,
	ErrRateLimited:      CodeRateLimit,
	ErrAuthFailed:       CodeAuthInvalid,
	ErrServerError:      CodeServerError,
	ErrNetwork:          CodeNetwork,
	ErrRetryExhausted:   CodeRetryExhausted,
	ErrContextOverflow:  CodeContextOverflow,
	ErrInvalidInput:     CodeInvalidInput,
	ErrInvalidUsage:     CodeInvalidUsage,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
