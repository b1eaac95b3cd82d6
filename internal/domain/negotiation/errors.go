package negotiation

import (
	"errors"
	"fmt"
)

// Error classes reported to clients. NotFound, InvalidRequest and Unauthorized are terminal;
// Transient marks storage or collaborator I/O failures that may succeed on retry.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTransient      = errors.New("temporary failure")
)

// ErrAlreadyDecided is returned when a proposal already carries a decision.
var ErrAlreadyDecided = fmt.Errorf("%w: proposal already decided", ErrInvalidRequest)

// NotFoundf wraps ErrNotFound with a formatted detail.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Invalidf wraps ErrInvalidRequest with a formatted detail.
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Transient marks err as retriable. Already classified errors pass through unchanged.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsClassified reports whether err already belongs to one of the error classes.
func IsClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTransient)
}
