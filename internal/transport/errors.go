package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means the link was down when the operation started.
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout means a write or read exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrTransportFailure wraps an I/O error surfaced by the link.
	ErrTransportFailure = errors.New("transport failure")

	// ErrInvalidArgument rejects bad sizes and counts before any work starts.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Classify maps an arbitrary error returned by a Transport onto one of the
// package error kinds, keeping the original cause in the chain.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransportFailure),
		errors.Is(err, ErrInvalidArgument):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
}

// Kind returns a short name for the error kind of err, used as a statistics key.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Invalidf returns an ErrInvalidArgument with a formatted detail message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
