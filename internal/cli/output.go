package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/names"
	"github.com/BigJazzz/mosaic/internal/remote"
	"github.com/BigJazzz/mosaic/internal/session"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation refused or failed (validation, offline, rejected session, etc.)
	ExitCommandError = 2 // Command error (bad config, store cannot be opened, etc.)
)

// Error codes reported in CLIError.Code.
const (
	CodeAuthRejected = "AUTH_REJECTED"
	CodeForbidden    = "FORBIDDEN"
	CodeNoMeeting    = "NO_MEETING_TODAY"
	CodeNoPlan       = "NO_PLAN"
	CodeNotFound     = "NOT_FOUND"
	CodeOffline      = "OFFLINE"
	CodeSyncInFlight = "SYNC_IN_FLIGHT"
	CodeUnsynced     = "UNSYNCED"
	CodeValidation   = "VALIDATION"
	CodeConfig       = "CONFIG"
	CodeGeneric      = "ERROR"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`             // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`     // success payload
	Error   *CLIError   `json:"error,omitempty"`    // error details
	TraceID string      `json:"trace_id,omitempty"` // optional request correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "VALIDATION", "OFFLINE", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// errNotQueued is returned when a queued check-in id does not exist.
var errNotQueued = errors.New("no such queued check-in")

// errorCode classifies an operation error for output.
func errorCode(err error) string {
	switch {
	case remote.IsAuthRejected(err):
		return CodeAuthRejected
	case remote.IsForbidden(err):
		return CodeForbidden
	case remote.IsNoMeetingToday(err):
		return CodeNoMeeting
	case errors.Is(err, session.ErrNoPlanSelected):
		return CodeNoPlan
	case remote.IsNotFound(err), errors.Is(err, names.ErrLotNotFound), errors.Is(err, errNotQueued):
		return CodeNotFound
	case attendance.IsValidation(err), remote.IsInvalid(err):
		return CodeValidation
	case errors.Is(err, engine.ErrSyncInFlight):
		return CodeSyncInFlight
	case errors.Is(err, session.ErrUnsyncedSubmissions):
		return CodeUnsynced
	case remote.IsTransient(err):
		return CodeOffline
	default:
		return CodeGeneric
	}
}

// fail reports err through the formatter and returns the matching ExitError.
func (f *OutputFormatter) fail(message string, err error) error {
	_ = f.Error(errorCode(err), fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitFailure, message, err)
}

// failCommand reports a setup error (config, local store) with exit code 2.
func (f *OutputFormatter) failCommand(message string, err error) error {
	_ = f.Error(CodeConfig, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}
