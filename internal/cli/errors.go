// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes shared by every command.
//
// Commands always return errors and never print-and-swallow them;
// Main decides how to display them and which exit code to use.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/otk/internal/config"
	"github.com/jeranaias/otk/internal/ollama"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	ExitInterrupted   = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a command failure with context.
type CommandError struct {
	Command string // e.g. "models"
	Action  string // e.g. "pull"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError is a user input problem.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// NewCommandError creates a CommandError.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required argument missing", Example: usage}
}

// ErrNotFound creates a NotFoundError.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		displayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if ollama.IsNotRunning(err) {
		fmt.Fprintln(w, DimStyle.Render("Is Ollama running? Start it with: ollama serve"))
	}
}

func displayErrorJSON(w io.Writer, err error) {
	out := map[string]any{
		"error":     err.Error(),
		"success":   false,
		"exit_code": ExitCode(err),
	}

	var (
		cmdErr      *CommandError
		validErr    *ValidationError
		notFoundErr *NotFoundError
	)
	switch {
	case errors.As(err, &validErr):
		out["error_type"] = "validation_error"
		out["field"] = validErr.Field
		out["reason"] = validErr.Reason
	case errors.As(err, &notFoundErr):
		out["error_type"] = "not_found_error"
		out["resource"] = notFoundErr.Resource
		out["id"] = notFoundErr.ID
	case errors.As(err, &cmdErr):
		out["error_type"] = "command_error"
		out["command"] = cmdErr.Command
		out["action"] = cmdErr.Action
	default:
		out["error_type"] = "generic_error"
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validErr    *ValidationError
		notFoundErr *NotFoundError
		cfgErrs     config.ValidateErrors
	)
	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &validErr):
		return ExitUsageError
	case errors.As(err, &notFoundErr), ollama.IsModelNotFound(err):
		return ExitNotFoundError
	case errors.As(err, &cfgErrs):
		return ExitConfigError
	case ollama.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case ollama.IsNotRunning(err):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// WrapError adds context to err, passing nil through.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
