// Package errors defines the sentinel errors of the index builder and maps
// them to process exit codes.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrCorruptSegment = errors.New("corrupt segment file")
	ErrTempExhausted  = errors.New("temporary file names exhausted")
	ErrNoOutput       = errors.New("no documents were parsed or none contained any words")
	ErrInternal       = errors.New("internal error")
)

const (
	ExitOK = iota
	ExitFailure
	ExitInvalidInput
	ExitCorruptSegment
	ExitTempExhausted
	ExitNoOutput
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCode,
	}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCode,
	}
}

// Corruptf wraps ErrCorruptSegment with a formatted description.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSegment, fmt.Sprintf(format, args...))
}

// Inputf wraps ErrInvalidInput with a formatted description.
func Inputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, ErrCorruptSegment):
		return ExitCorruptSegment
	case errors.Is(err, ErrTempExhausted):
		return ExitTempExhausted
	case errors.Is(err, ErrNoOutput):
		return ExitNoOutput
	default:
		return ExitFailure
	}
}
