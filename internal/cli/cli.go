// Package cli provides command-line interface functionality for hilrun.
package cli

import (
	"fmt"
	"strings"

	"github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/output"
)

// Version is set at build time.
var Version = "dev"

// wantsHelp returns true if args contain -h or --help before any -- separator.
func wantsHelp(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			return true
		}
		if arg == "--" {
			return false
		}
	}
	return false
}

// Run executes the CLI with the given arguments and returns an exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 0
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return 0
	case "--version", "version":
		fmt.Printf("hilrun %s\n", Version)
		return 0
	}

	opts, remaining, err := parseGlobalFlags(args)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}
	if len(remaining) == 0 {
		printUsage()
		return 0
	}
	cmd := remaining[0]
	cmdArgs := remaining[1:]

	switch cmd {
	case "run":
		return cmdRun(cmdArgs, opts)
	case "config":
		return cmdConfig(cmdArgs, opts)
	case "notify":
		return cmdNotify(cmdArgs, opts)
	case "report":
		return cmdReport(cmdArgs)
	default:
		out.ErrorPrefix("unknown command %q", cmd)
		out.Hint("run 'hilrun help' for usage")
		return errors.ExitConfigError
	}
}

// GlobalOptions holds parsed global flags.
type GlobalOptions struct {
	ConfigPath string
	Quiet      bool
	Verbose    bool
}

// parseGlobalFlags manually parses global flags from arguments.
//
// Flags can appear anywhere in the argument list, not just before the
// command, so the stdlib flag package is not used.
func parseGlobalFlags(args []string) (*GlobalOptions, []string, error) {
	opts := &GlobalOptions{}
	var remaining []string

	i := 0
	for i < len(args) {
		arg := args[i]

		switch {
		case arg == "-q" || arg == "--quiet":
			opts.Quiet = true
			i++
		case arg == "-v" || arg == "--verbose":
			opts.Verbose = true
			i++
		case arg == "-c" || arg == "--config":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("%s requires a value", arg)
			}
			opts.ConfigPath = args[i+1]
			i += 2
		case strings.HasPrefix(arg, "--config="):
			opts.ConfigPath = strings.TrimPrefix(arg, "--config=")
			i++
		case arg == "--":
			remaining = append(remaining, args[i:]...)
			i = len(args)
		default:
			remaining = append(remaining, arg)
			i++
		}
	}

	if err := validateGlobalOptions(opts); err != nil {
		return nil, nil, err
	}
	applyVerbosityToOutput(opts)

	return opts, remaining, nil
}

// validateGlobalOptions checks that global options are valid.
func validateGlobalOptions(opts *GlobalOptions) error {
	if opts.Quiet && opts.Verbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}
	return nil
}

func printUsage() {
	w := output.New()

	w.HelpTitle("hilrun - hardware-in-the-loop test campaign runner")

	w.HelpSection("Usage:")
	w.HelpUsage("hilrun <command> [flags]")

	w.HelpSection("Commands:")
	w.HelpCommand("run", "Run a test campaign (validate, check, stage, flash, test, archive, notify)", 18)
	w.HelpCommand("config validate", "Validate the main and task configuration", 18)
	w.HelpCommand("notify <message>", "Send a custom message through the configured channels", 18)
	w.HelpCommand("report <file>", "Render an archived summary.json in another format", 18)
	w.HelpCommand("version", "Show version information", 18)

	printGlobalFlags(w)

	w.HelpSection("Examples:")
	w.HelpExample("hilrun run", "Run every configured environment")
	w.HelpExample("hilrun run --mode=single -t nightly.json", "Run the default group on the first environment")
	w.HelpExample("hilrun -c rig2/hilrun.yaml config validate", "Validate another rig's configuration")
	w.HelpExample("hilrun notify \"bench 2 back online\"", "Test the notification channels")
	w.Println("")
}

func printGlobalFlags(w *output.Writer) {
	w.HelpSection("Global Flags:")
	w.HelpFlag("-c, --config <path>", "Main configuration file (default: discovered hilrun.json)", widthFlagWithValue)
	w.HelpFlag("-q, --quiet", "Minimal output (errors only)", widthFlagWithValue)
	w.HelpFlag("-v, --verbose", "Per-case output and debug logging", widthFlagWithValue)
	w.HelpFlag("-h, --help", "Show this help", widthFlagWithValue)
	w.HelpFlag("--version", "Show version", widthFlagWithValue)

	w.HelpSection("Environment:")
	w.HelpEnvVar("HILRUN_LOG_LEVEL", "Override logging.level (debug, info, warn, error)", 18)
}
