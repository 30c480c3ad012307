package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/quadrant/internal/channel"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The server rejected an operation, or a scenario failed
	ExitCommandError = 2 // Bad flags, unreachable server, unreadable files
)

// CodeRequestFailed marks a request that never got an answer from the server.
const CodeRequestFailed = "REQUEST_FAILED"

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, ExitFailure otherwise.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON Response.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

// Response is the JSON envelope every command prints with --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command. Code is the server's failure
// code when the server rejected the operation.
type ResponseError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details *RejectionDetails `json:"details,omitempty"`
}

// RejectionDetails names the operation a failure belongs to.
type RejectionDetails struct {
	Operation string `json:"operation"`
	Event     string `json:"event,omitempty"` // echoed by the server
}

// Success prints data.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error prints a failure with an optional operation context.
func (f *OutputFormatter) Error(code, message string, details *RejectionDetails) error {
	if f.Format == "json" {
		return f.encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}

	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Operation: %s\n", details.Operation)
		return err
	}
	return nil
}

// Rejected converts a failed request into an ExitError. A server rejection
// exits with ExitFailure, anything else with ExitCommandError. In JSON mode
// the failure is printed first; a write error is joined onto the result.
func (f *OutputFormatter) Rejected(op string, err error) error {
	code, reason, details := CodeRequestFailed, err.Error(), &RejectionDetails{Operation: op}
	exit := WrapExitError(ExitCommandError, op+" failed", err)

	var failed *channel.FailedError
	if errors.As(err, &failed) {
		code, reason = failed.Code, failed.Reason
		details.Event = failed.Event
		exit = WrapExitError(ExitFailure, op+" rejected", err)
	}

	if f.Format != "json" {
		return exit
	}
	if werr := f.Error(code, reason, details); werr != nil {
		return errors.Join(exit, fmt.Errorf("write failure report: %w", werr))
	}
	return exit
}

// VerboseLog prints a diagnostic line when verbose mode is on. It goes to
// ErrWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func (f *OutputFormatter) encode(r Response) error {
	return json.NewEncoder(f.Writer).Encode(r)
}
