package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AndreyAkinshin/hilrun/internal/config"
	"github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/output"
	"github.com/AndreyAkinshin/hilrun/internal/pipeline"
	"github.com/AndreyAkinshin/hilrun/internal/project"
)

// out is the shared output writer for CLI commands.
var out = output.New()

// Help text alignment widths for consistent formatting.
const (
	helpFlagWidthShort = 14 // Width for command flags like "-t, --task"
	widthFlagWithValue = 22 // Width for flags with values like "-c, --config <path>"
)

// applyVerbosityToOutput configures the output writer based on verbosity settings.
func applyVerbosityToOutput(opts *GlobalOptions) {
	out.SetQuiet(opts.Quiet)
	out.SetVerbose(opts.Verbose)
}

// loadProject loads the main configuration and handles errors uniformly.
// Returns the project and exit code 0 on success, or nil and the config
// error exit code on failure. Warnings are printed.
func loadProject(path string) (*project.Project, int) {
	proj, err := project.Load(path)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return nil, errors.ExitConfigError
	}
	for _, w := range proj.Warnings {
		out.Warning("%s", w)
	}
	return proj, 0
}

// runOptions holds the flags of the run command.
type runOptions struct {
	Mode     string
	TaskPath string
}

// parseRunFlags parses run command flags. Both "--mode=single" and
// "--mode single" forms are accepted.
func parseRunFlags(args []string) (*runOptions, error) {
	opts := &runOptions{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--mode" || arg == "-t" || arg == "--task":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			if arg == "--mode" {
				opts.Mode = args[i+1]
			} else {
				opts.TaskPath = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--mode="):
			opts.Mode = strings.TrimPrefix(arg, "--mode=")
		case strings.HasPrefix(arg, "--task="):
			opts.TaskPath = strings.TrimPrefix(arg, "--task=")
		default:
			return nil, fmt.Errorf("unexpected argument %q", arg)
		}
	}
	if opts.Mode != "" && opts.Mode != pipeline.ModeMulti && opts.Mode != pipeline.ModeSingle {
		return nil, fmt.Errorf("invalid mode %q: must be %s or %s", opts.Mode, pipeline.ModeMulti, pipeline.ModeSingle)
	}
	return opts, nil
}

// cmdRun runs one campaign and returns its exit code.
func cmdRun(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printRunUsage()
		return 0
	}
	runOpts, err := parseRunFlags(args)
	if err != nil {
		out.ErrorPrefix("run: %v", err)
		return errors.ExitConfigError
	}

	proj, code := loadProject(opts.ConfigPath)
	if proj == nil {
		return code
	}
	cfg := proj.Config

	logPath := cfg.ResolvePath(cfg.Logging.FilePath)
	logger, closeLog, err := initLogging(cfg, logPath, opts)
	if err != nil {
		out.ErrorPrefix("logging: %v", err)
		return errors.ExitConfigError
	}
	defer func() { _ = closeLog() }()

	envs, err := proj.Environments()
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}

	mode := runOpts.Mode
	if mode == "" {
		mode = cfg.Mode
	}

	c, err := buildCampaign(cfg, out.Environment)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}
	defer func() { _ = c.close() }()

	var artifacts []string
	if logPath != "" {
		artifacts = append(artifacts, logPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	out.Info("Campaign: %d environment(s), mode %s", len(envs), mode)
	ctl := pipeline.New(c.deps, pipeline.Options{
		TaskPath:     cfg.TaskPath(runOpts.TaskPath),
		Mode:         mode,
		Environments: envs,
		Artifacts:    artifacts,
		OnTransition: func(t pipeline.Transition) {
			out.Stage(string(t.To), t.Reason)
		},
	})
	res := ctl.Run(ctx)

	printResult(res)
	return res.ExitCode()
}

// initLogging builds the process logger. Console logs go to stderr and are
// muted in quiet mode; verbose mode forces debug level.
func initLogging(cfg *config.Config, logPath string, opts *GlobalOptions) (*slog.Logger, func() error, error) {
	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	}
	var console io.Writer = os.Stderr
	if opts.Quiet {
		console = io.Discard
	}
	return logging.Init(logging.Options{
		Level:    level,
		Format:   cfg.Logging.Format,
		FilePath: logPath,
		Output:   console,
	})
}

func printResult(res pipeline.Result) {
	for _, w := range res.Warnings {
		out.Warning("%s", w)
	}
	if res.Flash != nil {
		out.Flash(*res.Flash)
	}
	if res.Summary != nil {
		out.Println("")
		out.Campaign(*res.Summary)
	}
	if res.ArchiveDir != "" {
		out.SummaryItem("Archive", res.ArchiveDir)
	}
	if res.Err != nil {
		out.ErrorPrefix("%v", res.Err)
	}
}

// cmdConfig handles the config command and its subcommands.
func cmdConfig(args []string, opts *GlobalOptions) int {
	if len(args) == 0 {
		printConfigUsage()
		return errors.ExitConfigError
	}
	if wantsHelp(args[:1]) {
		printConfigUsage()
		return 0
	}

	switch args[0] {
	case "validate":
		return cmdConfigValidate(args[1:], opts)
	default:
		out.ErrorPrefix("config: unknown subcommand %q", args[0])
		printConfigUsage()
		return errors.ExitConfigError
	}
}

// cmdConfigValidate validates the main configuration and the task
// configuration it points to.
func cmdConfigValidate(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printConfigUsage()
		return 0
	}
	runOpts, err := parseRunFlags(args)
	if err != nil {
		out.ErrorPrefix("config validate: %v", err)
		return errors.ExitConfigError
	}

	proj, code := loadProject(opts.ConfigPath)
	if proj == nil {
		return code
	}
	cfg := proj.Config

	envs, err := proj.Environments()
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}

	taskPath := cfg.TaskPath(runOpts.TaskPath)
	task, warnings, err := config.LoadTask(taskPath)
	if err != nil {
		out.ErrorPrefix("%s: %v", taskPath, err)
		return errors.ExitConfigError
	}
	for _, w := range warnings {
		out.Warning("%s: %s", taskPath, w)
	}
	if _, _, err := buildNotifier(cfg); err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}
	if *cfg.Archive.Enabled {
		if _, err := buildArchiver(cfg); err != nil {
			out.ErrorPrefix("%v", err)
			return errors.ExitConfigError
		}
	}

	names := task.GroupNames()
	enabled := 0
	groups := make([]string, 0, len(names))
	for _, g := range names {
		cases, _ := task.Group(g)
		n := model.EnabledCount(cases)
		enabled += n
		groups = append(groups, fmt.Sprintf("%s (%d of %d enabled)", g, n, len(cases)))
	}
	if opts.Verbose {
		out.Section("Environments")
		out.List(envs)
		out.Section("Groups")
		out.List(groups)
		out.Println("")
	}
	out.ValidationSuccess("Configuration valid: %d environment(s), %d group(s), %d enabled test case(s)", len(envs), len(names), enabled)
	return 0
}

// cmdNotify sends a custom message through the configured channels.
func cmdNotify(args []string, opts *GlobalOptions) int {
	if wantsHelp(args) {
		printNotifyUsage()
		return 0
	}
	subject := "Message"
	var words []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject":
			if i+1 >= len(args) {
				out.ErrorPrefix("notify: --subject requires a value")
				return errors.ExitConfigError
			}
			subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		default:
			words = append(words, arg)
		}
	}
	message := strings.TrimSpace(strings.Join(words, " "))
	if message == "" {
		out.ErrorPrefix("notify: message required")
		printNotifyUsage()
		return errors.ExitConfigError
	}

	proj, code := loadProject(opts.ConfigPath)
	if proj == nil {
		return code
	}
	notifier, composer, err := buildNotifier(proj.Config)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}
	if notifier == nil {
		out.ErrorPrefix("notify: no notification channel is enabled")
		out.Hint("enable notifications.email or notifications.webhook in the configuration")
		return errors.ExitConfigError
	}

	kind, payload, err := composer.Custom("", subject, message)
	if err != nil {
		out.ErrorPrefix("notify: %v", err)
		return errors.ExitRuntimeError
	}
	if err := notifier.Notify(context.Background(), kind, payload); err != nil {
		out.ErrorPrefix("notify: %v", err)
		return errors.ExitRuntimeError
	}
	out.Success("Notification sent: %s", payload.Subject)
	return 0
}

func printRunUsage() {
	w := output.New()
	w.HelpTitle("hilrun run - run a test campaign")
	w.HelpSection("Usage:")
	w.HelpUsage("hilrun run [--mode <multi|single>] [-t <task.json>]")
	w.HelpSection("Flags:")
	w.HelpFlag("--mode <m>", "multi runs every environment with its group; single runs the default group once", helpFlagWidthShort)
	w.HelpFlag("-t, --task <path>", "Task configuration (default: task_config_path)", helpFlagWidthShort)
	printGlobalFlags(w)
	w.HelpSection("Exit Codes:")
	w.HelpCommand("0", "Campaign completed, including test failures", 5)
	w.HelpCommand("2", "Invalid configuration", 5)
	w.HelpCommand("3", "Environment not ready or package staging failed", 5)
	w.HelpCommand("4", "Flashing failed, backup restored", 5)
	w.HelpCommand("5", "Flashing failed and the backup could not be restored", 5)
	w.HelpCommand("130", "Interrupted", 5)
	w.Println("")
}

func printConfigUsage() {
	w := output.New()
	w.HelpTitle("hilrun config - configuration utilities")
	w.HelpSection("Usage:")
	w.HelpUsage("hilrun config validate [-t <task.json>]")
	w.HelpSection("Subcommands:")
	w.HelpCommand("validate", "Validate the main configuration, task configuration and notification templates", 10)
	w.Println("")
}

func printNotifyUsage() {
	w := output.New()
	w.HelpTitle("hilrun notify - send a message through the configured channels")
	w.HelpSection("Usage:")
	w.HelpUsage("hilrun notify [--subject <s>] <message>")
	w.HelpSection("Flags:")
	w.HelpFlag("--subject <s>", "Subject line (default: Message)", helpFlagWidthShort)
	w.Println("")
}
