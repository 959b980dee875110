// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"os"
)

// ExitError signals a non-zero exit code without an extra error
// message: the command already wrote its own output. Used where a
// non-zero exit is a valid outcome rather than a failure, like a
// listing that found nothing.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int { return e.Code }

// Exit prints err (unless it is a bare ExitError) and returns the
// exit code main should pass to os.Exit.
func Exit(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	fmt.Fprintf(os.Stderr, "runboard: %v\n", err)
	var tool *ToolError
	if errors.As(err, &tool) {
		return tool.ExitCode()
	}
	return 1
}
