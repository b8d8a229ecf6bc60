// Package pipeline drives one test campaign through its stages: task
// validation, environment check, package staging, flashing, test
// execution, archiving and notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/AndreyAkinshin/hilrun/internal/archive"
	"github.com/AndreyAkinshin/hilrun/internal/envcheck"
	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/notify"
	"github.com/AndreyAkinshin/hilrun/internal/packages"
)

// State is a pipeline state.
type State string

const (
	StateInit            State = "INIT"
	StateConfigValidated State = "CONFIG_VALIDATED"
	StateEnvChecked      State = "ENV_CHECKED"
	StatePackagesStaged  State = "PACKAGES_STAGED"
	StateFlashed         State = "FLASHED"
	StateTested          State = "TESTED"
	StateArchived        State = "ARCHIVED"
	StateNotified        State = "NOTIFIED"
	StateDone            State = "DONE"
	StateAborted         State = "ABORTED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Run modes.
const (
	ModeMulti  = "multi"
	ModeSingle = "single"
)

// Transition records one state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// TaskLoader loads and validates a task configuration, returning warnings.
type TaskLoader func(path string) (*model.TaskConfig, []string, error)

// Checker reports whether the bench is ready.
type Checker interface {
	Check(ctx context.Context) (envcheck.Readiness, error)
}

// Stager stages the task's packages.
type Stager interface {
	Stage(ctx context.Context, pkgs []model.Package) (packages.Staged, error)
}

// Flasher writes a firmware artifact to the device.
type Flasher interface {
	Flash(ctx context.Context, artifact string, maxRetries int, timeout time.Duration) (model.FlashOutcome, error)
}

// Executor runs test cases across environments.
type Executor interface {
	RunAll(ctx context.Context, paths []string, task *model.TaskConfig) model.CampaignSummary
	RunSingle(ctx context.Context, path string, task *model.TaskConfig) model.CampaignSummary
}

// Deps are the collaborators of a Controller. Checker, Archiver and
// Notifier are optional; Stager and Flasher are required only when the
// task enables the stage.
type Deps struct {
	LoadTask TaskLoader
	Checker  Checker
	Stager   Stager
	Flasher  Flasher
	Executor Executor
	Archiver archive.Archiver
	Notifier notify.Notifier
	Composer *notify.Composer
}

// Options configures one campaign.
type Options struct {
	TaskPath     string
	Mode         string   // ModeMulti (default) or ModeSingle
	Environments []string // environment definition paths, in run order
	Artifacts    []string // extra files copied into the archive, e.g. the log file

	// OnTransition, when set, is called after every recorded transition.
	OnTransition func(Transition)
}

// Result is the outcome of Controller.Run.
type Result struct {
	State       State
	Transitions []Transition
	Task        *model.TaskConfig
	Staged      packages.Staged
	Flash       *model.FlashOutcome
	Summary     *model.CampaignSummary
	ArchiveDir  string
	Warnings    []string
	Err         error // reason for ABORTED; nil when the campaign completed
}

// ExitCode maps the result to the process exit status. A completed
// campaign exits 0 whatever the test outcomes.
func (r Result) ExitCode() int {
	return hilerrors.GetExitCode(r.Err)
}

// Controller runs the pipeline state machine.
type Controller struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Controller.
func New(deps Deps, opts Options) *Controller {
	if deps.Composer == nil {
		deps.Composer, _ = notify.NewComposer("", nil)
	}
	if opts.Mode == "" {
		opts.Mode = ModeMulti
	}
	return &Controller{deps: deps, opts: opts, now: time.Now}
}

type stage struct {
	label string
	to    State
	skip  func(*Result) bool
	run   func(context.Context, *Result) error
}

// Run executes the campaign. It never panics on collaborator errors and
// always returns a terminal state.
//
// A stop requested through ctx is honored between stages. A stop during
// testing still archives and reports the partial summary before the
// pipeline ends in ABORTED.
func (c *Controller) Run(ctx context.Context) Result {
	log := logging.For(ctx, "Pipeline")
	r := &Result{State: StateInit}

	stages := []stage{
		{label: "config validation", to: StateConfigValidated, run: c.loadTask},
		{label: "environment check", to: StateEnvChecked, run: c.checkEnvironment},
		{label: "package staging", to: StatePackagesStaged, run: c.stagePackages,
			skip: func(r *Result) bool { return !r.Task.Packages.Enabled }},
		{label: "flashing", to: StateFlashed, run: c.flash,
			skip: func(r *Result) bool { return !r.Task.Flash.Enabled }},
		{label: "testing", to: StateTested, run: c.test},
	}
	for _, s := range stages {
		if s.skip != nil && s.skip(r) {
			log.Info("stage skipped", "stage", s.label)
			continue
		}
		if ctx.Err() != nil {
			c.abort(ctx, r, s.label, hilerrors.Interrupted(s.label))
			return *r
		}
		log.Info("stage started", "stage", s.label)
		if err := s.run(ctx, r); err != nil {
			c.abort(ctx, r, s.label, err)
			return *r
		}
		c.transition(ctx, r, s.to, "")
	}

	c.archive(ctx, r)
	c.notify(ctx, r)

	if r.Summary.Interrupted {
		r.Err = hilerrors.Interrupted("testing")
		c.transition(ctx, r, StateAborted, r.Err.Error())
		return *r
	}
	c.transition(ctx, r, StateDone, "")
	return *r
}

func (c *Controller) loadTask(ctx context.Context, r *Result) error {
	if c.deps.LoadTask == nil {
		return hilerrors.Config("no task loader configured")
	}
	task, warnings, err := c.deps.LoadTask(c.opts.TaskPath)
	for _, w := range warnings {
		logging.For(ctx, "Pipeline").Warn("task configuration warning", "warning", w)
	}
	r.Warnings = append(r.Warnings, warnings...)
	if err != nil {
		return asKind(hilerrors.KindConfig, err, fmt.Sprintf("invalid task configuration %s", c.opts.TaskPath))
	}
	if len(c.opts.Environments) == 0 {
		return hilerrors.Config("no environment definitions configured")
	}
	r.Task = task
	return nil
}

func (c *Controller) checkEnvironment(ctx context.Context, _ *Result) error {
	if c.deps.Checker == nil {
		return nil
	}
	readiness, err := c.deps.Checker.Check(ctx)
	if err != nil {
		return asKind(hilerrors.KindEnvironment, err, "environment check failed")
	}
	if !readiness.Ready {
		return hilerrors.Environment("environment not ready")
	}
	return nil
}

func (c *Controller) stagePackages(ctx context.Context, r *Result) error {
	if c.deps.Stager == nil {
		return hilerrors.Environment("package staging enabled but no stager configured")
	}
	staged, err := c.deps.Stager.Stage(ctx, r.Task.Packages.Packages)
	if err != nil {
		return asKind(hilerrors.KindEnvironment, err, "package staging failed")
	}
	r.Staged = staged
	return nil
}

func (c *Controller) flash(ctx context.Context, r *Result) error {
	if c.deps.Flasher == nil {
		return hilerrors.WrapKind(hilerrors.KindFlash, errors.New("no flasher configured"), "flashing enabled")
	}
	artifact, err := c.artifact(r)
	if err != nil {
		return err
	}
	fc := r.Task.Flash
	outcome, err := c.deps.Flasher.Flash(ctx, artifact, fc.MaxRetries, fc.Timeout)
	r.Flash = &outcome
	if err != nil {
		if ctx.Err() != nil && hilerrors.KindOf(err) == hilerrors.KindFlash {
			// Retries were abandoned for a stop and the backup is back.
			return hilerrors.Interrupted("flashing")
		}
		return asKind(hilerrors.KindFlash, err, "flashing failed")
	}
	return nil
}

// artifact resolves the firmware file: among the staged packages when the
// package manager is used, relative to the task file otherwise.
func (c *Controller) artifact(r *Result) (string, error) {
	fc := r.Task.Flash
	if fc.UsePackageManager {
		path, ok := r.Staged.Lookup(fc.FilePath)
		if !ok {
			return "", hilerrors.WrapKind(hilerrors.KindFlash,
				fmt.Errorf("%q is not among the staged packages", fc.FilePath), "resolve flash artifact")
		}
		return path, nil
	}
	if fc.FilePath == "" || filepath.IsAbs(fc.FilePath) || r.Task.Dir == "" {
		return fc.FilePath, nil
	}
	return filepath.Join(r.Task.Dir, fc.FilePath), nil
}

func (c *Controller) test(ctx context.Context, r *Result) error {
	if c.deps.Executor == nil {
		return hilerrors.New("no test executor configured")
	}
	var summary model.CampaignSummary
	if c.opts.Mode == ModeSingle {
		summary = c.deps.Executor.RunSingle(ctx, c.opts.Environments[0], r.Task)
	} else {
		summary = c.deps.Executor.RunAll(ctx, c.opts.Environments, r.Task)
	}
	r.Summary = &summary
	return nil
}

// archive and notify run detached from the stop signal so an interrupted
// campaign is still recorded.

func (c *Controller) archive(ctx context.Context, r *Result) {
	log := logging.For(ctx, "Pipeline")
	if c.deps.Archiver != nil {
		dir, err := c.deps.Archiver.Archive(context.WithoutCancel(ctx), *r.Summary, c.opts.Artifacts)
		r.ArchiveDir = dir
		if err != nil {
			log.Warn("archiving failed", "error", err)
			r.Warnings = append(r.Warnings, fmt.Sprintf("archive: %v", err))
		}
	}
	c.transition(ctx, r, StateArchived, "")
}

func (c *Controller) notify(ctx context.Context, r *Result) {
	log := logging.For(ctx, "Pipeline")
	if c.deps.Notifier != nil {
		kind, payload, err := c.deps.Composer.Completion(*r.Summary)
		if err == nil {
			err = c.deps.Notifier.Notify(context.WithoutCancel(ctx), kind, payload)
		}
		if err != nil {
			log.Warn("completion notification failed", "error", err)
			r.Warnings = append(r.Warnings, fmt.Sprintf("notify: %v", err))
		}
	}
	c.transition(ctx, r, StateNotified, "")
}

// abort ends the campaign at stage and sends the abort notification.
func (c *Controller) abort(ctx context.Context, r *Result, stage string, err error) {
	log := logging.For(ctx, "Pipeline")
	var he *hilerrors.HilError
	if errors.As(err, &he) && he.Stage == "" {
		err = he.WithStage(stage)
	}
	r.Err = err
	log.Error("campaign aborted", "stage", stage, "error", err)
	c.transition(ctx, r, StateAborted, err.Error())

	if c.deps.Notifier == nil {
		return
	}
	name := ""
	if r.Task != nil {
		name = r.Task.Name
	}
	kind, payload, nerr := c.deps.Composer.Abort(name, stage, err, c.now())
	if nerr == nil {
		nerr = c.deps.Notifier.Notify(context.WithoutCancel(ctx), kind, payload)
	}
	if nerr != nil {
		log.Warn("abort notification failed", "error", nerr)
		r.Warnings = append(r.Warnings, fmt.Sprintf("notify: %v", nerr))
	}
}

func (c *Controller) transition(ctx context.Context, r *Result, to State, reason string) {
	t := Transition{From: r.State, To: to, At: c.now(), Reason: reason}
	r.Transitions = append(r.Transitions, t)
	r.State = to
	log := logging.For(ctx, "Pipeline")
	if reason != "" {
		log.Info("transition", "from", t.From, "to", t.To, "reason", reason)
	} else {
		log.Info("transition", "from", t.From, "to", t.To)
	}
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(t)
	}
}

// asKind keeps the kind of a structured error and wraps anything else.
func asKind(kind hilerrors.ErrorKind, err error, message string) error {
	var he *hilerrors.HilError
	if errors.As(err, &he) {
		return err
	}
	return hilerrors.WrapKind(kind, err, message)
}
