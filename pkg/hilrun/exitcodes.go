// Package hilrun provides public constants for tools that invoke the hilrun
// CLI, such as CI wrappers deciding whether a rig run should be retried.
package hilrun

// Exit codes returned by the hilrun CLI.
// A completed campaign exits with ExitSuccess even when test cases failed;
// the pass rate is reported in the summary and notifications instead.
const (
	// ExitSuccess indicates the campaign ran to completion.
	ExitSuccess = 0

	// ExitFailure indicates an unexpected runtime failure.
	ExitFailure = 1

	// ExitConfigError indicates an invalid main or task configuration.
	ExitConfigError = 2

	// ExitEnvError indicates the test environment was not ready or
	// packages could not be staged.
	ExitEnvError = 3

	// ExitFlashError indicates flashing failed after all retries. The
	// device backup was restored.
	ExitFlashError = 4

	// ExitFlashRestoreError indicates flashing failed and the device backup
	// could not be restored. The device needs manual attention.
	ExitFlashRestoreError = 5

	// ExitInterrupted indicates the campaign was stopped by a signal.
	// Partial results were still archived and reported.
	ExitInterrupted = 130
)
