// Package errors provides structured error types and exit codes for hilrun.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes returned by the hilrun binary.
const (
	ExitSuccess           = 0   // Campaign completed (test failures included)
	ExitRuntimeError      = 1   // Unexpected runtime error
	ExitConfigError       = 2   // Invalid main or task configuration
	ExitEnvironmentError  = 3   // Environment not ready, package staging failed
	ExitFlashError        = 4   // Flashing failed after all retries
	ExitFlashRestoreError = 5   // Flashing failed and the backup could not be restored
	ExitInterrupted       = 130 // Stop signal received
)

// ErrorKind represents the type of error.
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	KindConfig
	KindNotFound
	KindValidation
	KindEnvironment
	KindFlash
	KindFlashRestore
	KindTestCase
	KindEnvironmentLoad
	KindArchive
	KindNotification
	KindInterrupted
)

var kindNames = map[ErrorKind]string{
	KindRuntime:         "runtime",
	KindConfig:          "configuration",
	KindNotFound:        "not found",
	KindValidation:      "validation",
	KindEnvironment:     "environment",
	KindFlash:           "flash",
	KindFlashRestore:    "flash restore",
	KindTestCase:        "test case",
	KindEnvironmentLoad: "environment load",
	KindArchive:         "archive",
	KindNotification:    "notification",
	KindInterrupted:     "interrupted",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// HilError is the base error type for hilrun.
type HilError struct {
	Kind        ErrorKind
	Message     string
	Stage       string // Pipeline stage if applicable
	Environment string // Environment definition path if applicable
	Cause       error  // Underlying error
}

func (e *HilError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Stage != "" && e.Environment != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Stage, e.Environment, msg)
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s", e.Stage, msg)
	}
	return msg
}

func (e *HilError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *HilError) ExitCode() int {
	switch e.Kind {
	case KindConfig, KindValidation:
		return ExitConfigError
	case KindEnvironment:
		return ExitEnvironmentError
	case KindFlash:
		return ExitFlashError
	case KindFlashRestore:
		return ExitFlashRestoreError
	case KindInterrupted:
		return ExitInterrupted
	default:
		return ExitRuntimeError
	}
}

// Fatal reports whether errors of this kind abort a campaign.
// Test case, environment load, archive and notification errors are
// recorded or logged instead.
func (e *HilError) Fatal() bool {
	switch e.Kind {
	case KindTestCase, KindEnvironmentLoad, KindArchive, KindNotification:
		return false
	default:
		return true
	}
}

// WithStage returns a copy of the error annotated with a pipeline stage.
func (e *HilError) WithStage(stage string) *HilError {
	cp := *e
	cp.Stage = stage
	return &cp
}

// New creates a new runtime error.
func New(message string) *HilError {
	return &HilError{
		Kind:    KindRuntime,
		Message: message,
	}
}

// Newf creates a new runtime error with formatting.
func Newf(format string, args ...interface{}) *HilError {
	return New(fmt.Sprintf(format, args...))
}

// Config creates a new configuration error.
func Config(message string) *HilError {
	return &HilError{
		Kind:    KindConfig,
		Message: message,
	}
}

// Configf creates a new configuration error with formatting.
func Configf(format string, args ...interface{}) *HilError {
	return Config(fmt.Sprintf(format, args...))
}

// Environment creates a new environment error.
func Environment(message string) *HilError {
	return &HilError{
		Kind:    KindEnvironment,
		Message: message,
	}
}

// Environmentf creates a new environment error with formatting.
func Environmentf(format string, args ...interface{}) *HilError {
	return Environment(fmt.Sprintf(format, args...))
}

// Flash creates a flash error after the given number of attempts.
func Flash(attempts int, cause error) *HilError {
	return &HilError{
		Kind:    KindFlash,
		Message: fmt.Sprintf("flash failed after %d attempt(s)", attempts),
		Cause:   cause,
	}
}

// FlashRestore creates the error reported when flashing failed and the
// device backup could not be restored either.
func FlashRestore(flashErr, restoreErr error) *HilError {
	return &HilError{
		Kind:    KindFlashRestore,
		Message: "flash failed and backup restore failed",
		Cause:   errors.Join(flashErr, restoreErr),
	}
}

// EnvironmentLoad creates an error for an environment definition that
// could not be loaded.
func EnvironmentLoad(path string, cause error) *HilError {
	return &HilError{
		Kind:        KindEnvironmentLoad,
		Message:     "failed to load environment",
		Environment: path,
		Cause:       cause,
	}
}

// TestCase creates an error for a single test case dispatch.
func TestCase(name string, cause error) *HilError {
	return &HilError{
		Kind:    KindTestCase,
		Message: fmt.Sprintf("test case %q failed to execute", name),
		Cause:   cause,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *HilError {
	return &HilError{
		Kind:    KindRuntime,
		Message: message,
		Cause:   err,
	}
}

// WrapKind wraps an error with a specific kind.
func WrapKind(kind ErrorKind, err error, message string) *HilError {
	return &HilError{
		Kind:    kind,
		Message: message,
		Cause:   err,
	}
}

// NotFound creates a not found error.
func NotFound(what, name string) *HilError {
	return &HilError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", what, name),
	}
}

// Interrupted creates the error returned when a stop signal ends a campaign.
func Interrupted(stage string) *HilError {
	return &HilError{
		Kind:    KindInterrupted,
		Message: "campaign interrupted",
		Stage:   stage,
	}
}

// KindOf returns the kind of the first HilError in the chain, or
// KindRuntime if there is none.
func KindOf(err error) ErrorKind {
	var he *HilError
	if errors.As(err, &he) {
		return he.Kind
	}
	return KindRuntime
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var he *HilError
	if errors.As(err, &he) {
		return he.ExitCode()
	}
	return ExitRuntimeError
}
