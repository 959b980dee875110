// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ErrorCategory classifies command errors so scripts wrapping the CLI
// can decide what to do (fix input, back off, give up) without
// parsing message text. The category maps to the process exit code.
type ErrorCategory string

const (
	// CategoryValidation: the caller provided invalid input. Fix the
	// arguments and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: a referenced run or file does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryConflict: the operation conflicts with existing state,
	// like recording into a directory that already holds a finished
	// run.
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: a temporary failure, typically I/O on a
	// network mount. Back off and retry.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: a bug or an unexpected I/O failure. Report,
	// don't retry.
	CategoryInternal ErrorCategory = "internal"
)

// exitCode maps a category to the process exit code. Validation
// problems exit 2 to match flag-parsing convention.
func (c ErrorCategory) exitCode() int {
	switch c {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryConflict:
		return 4
	case CategoryTransient:
		return 5
	default:
		return 1
	}
}

// ToolError is a categorized error returned by command handlers. It
// wraps an inner error so errors.Is and errors.As see the full chain.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the exit code for the error's category.
func (e *ToolError) ExitCode() int { return e.Category.exitCode() }

// Validation creates a validation error: the caller provided bad
// input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error: a referenced run or file does
// not exist.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Conflict creates a conflict error: the operation conflicts with
// existing state.
func Conflict(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may
// succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure, bug, or
// I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}
