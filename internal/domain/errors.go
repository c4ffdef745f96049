package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound  = fmt.Errorf("llm provider not found")
	ErrInvalidInput      = fmt.Errorf("invalid input")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrTimeout           = fmt.Errorf("operation timed out")
	ErrStreamUnavailable = fmt.Errorf("response stream unavailable")

	// Upstream errors, classified from HTTP status codes.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrProviderError   = fmt.Errorf("provider error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
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

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderError) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeProviderNotFound  ErrorCode = "PROVIDER_NOT_FOUND"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeStreamUnavailable ErrorCode = "STREAM_UNAVAILABLE"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrProviderNotFound:  CodeProviderNotFound,
	ErrInvalidInput:      CodeInvalidInput,
	ErrConfigLoad:        CodeConfigLoad,
	ErrTimeout:           CodeTimeout,
	ErrStreamUnavailable: CodeStreamUnavailable,
	ErrContextOverflow:   CodeContextOverflow,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrProviderError:     CodeProviderError,
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
	return ErrorCodeOf(e.Err)
}
