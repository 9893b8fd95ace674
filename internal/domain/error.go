package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
	CodeInternal         ErrorCode = "INTERNAL"
)

var (
	// ErrToolNotFound indicates the requested tool name is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrBackendUnavailable indicates the owning backend is not connected.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInvokeTimeout indicates an invocation exceeded its deadline.
	ErrInvokeTimeout = errors.New("invocation timed out")
	// ErrInvalidQuery indicates malformed search input.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrIndexInconsistent indicates the ranked index violated an internal
	// invariant. The catalog self-heals by rebuilding; the error is never
	// surfaced to callers of the listing surface.
	ErrIndexInconsistent = errors.New("index inconsistent")
	// ErrBackendNotFound indicates an unknown backend identifier.
	ErrBackendNotFound = errors.New("backend not found")
	// ErrInvalidTransition indicates an illegal backend state change.
	ErrInvalidTransition = errors.New("invalid backend state transition")
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrBackendNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrBackendUnavailable):
		return CodeUnavailable, true
	case errors.Is(err, ErrInvokeTimeout):
		return CodeDeadlineExceeded, true
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidTransition):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrIndexInconsistent):
		return CodeInternal, true
	default:
		return "", false
	}
}
