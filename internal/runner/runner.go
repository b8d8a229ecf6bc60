// Package runner executes test-case groups inside external test
// environments, one environment at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AndreyAkinshin/hilrun/internal/aggregate"
	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/extenv"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/target"
)

// NativeInvoker runs native test cases. *native.Registry implements it.
type NativeInvoker interface {
	Invoke(ctx context.Context, tc model.TestCase) (model.Outcome, error)
}

// Options configures a Runner.
type Options struct {
	LoadTimeout time.Duration // bounds Load and Release
	TestTimeout time.Duration // default per-case timeout

	// OnEnvironment, when set, is called after each environment finishes.
	OnEnvironment func(model.EnvironmentRunSummary)
}

// Runner runs test cases against loaded environments.
type Runner struct {
	automation extenv.Automation
	natives    NativeInvoker
	resolver   *target.Resolver
	opts       Options

	now   func() time.Time
	newID func() string
}

// New creates a Runner. A nil resolver resolves every environment to the
// default group.
func New(automation extenv.Automation, natives NativeInvoker, resolver *target.Resolver, opts Options) *Runner {
	if resolver == nil {
		resolver = target.NewResolver(nil)
	}
	return &Runner{
		automation: automation,
		natives:    natives,
		resolver:   resolver,
		opts:       opts,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run executes the enabled cases in order inside the loaded environment h
// and returns exactly one result per enabled case. Dispatch errors and
// timeouts become ERROR results. If ctx is done before a case starts, that
// case and the ones after it are reported as SKIP.
//
// The returned summary has no environment identity; callers fill it in.
func (r *Runner) Run(ctx context.Context, h extenv.Handle, cases []model.TestCase) model.EnvironmentRunSummary {
	log := logging.For(ctx, "Runner")
	results := make([]model.TestResult, 0, model.EnabledCount(cases))
	for _, tc := range cases {
		if !tc.Enabled {
			continue
		}
		if ctx.Err() != nil {
			now := r.now()
			results = append(results, model.TestResult{
				TestName:     tc.Name,
				TestKind:     tc.Kind,
				Status:       model.StatusSkip,
				StartTime:    now,
				EndTime:      now,
				ErrorMessage: "not run: stop requested",
			})
			continue
		}
		res := r.execute(ctx, h, tc)
		log.Debug("test case finished", "case", tc.Name, "status", res.Status, "duration", res.Duration())
		results = append(results, res)
	}
	return aggregate.Summarize(model.EnvironmentID{}, "", results)
}

// execute runs one case under its own timeout. The call is detached from
// ctx cancellation so that a stop request never interrupts it.
func (r *Runner) execute(ctx context.Context, h extenv.Handle, tc model.TestCase) (res model.TestResult) {
	timeout := tc.Timeout(r.opts.TestTimeout)
	callCtx, cancel := detached(ctx, timeout)
	defer cancel()

	res = model.TestResult{TestName: tc.Name, TestKind: tc.Kind, StartTime: r.now()}
	defer func() {
		if p := recover(); p != nil {
			res.Status = model.StatusError
			res.ErrorMessage = hilerrors.TestCase(tc.Name, fmt.Errorf("panic: %v", p)).Error()
		}
		res.EndTime = r.now()
	}()

	out, err := r.dispatch(callCtx, h, tc)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		res.Status = model.StatusError
		res.TimedOut = true
		res.ErrorMessage = fmt.Sprintf("timed out after %s", timeout)
	case err != nil:
		res.Status = model.StatusError
		res.ErrorMessage = hilerrors.TestCase(tc.Name, err).Error()
	case !out.Status.Valid():
		res.Status = model.StatusError
		res.ErrorMessage = fmt.Sprintf("invalid status %q reported", out.Status)
		res.Details = out.Details
	default:
		res.Status = out.Status
		res.ErrorMessage = out.Message
		res.Details = out.Details
	}
	return res
}

func (r *Runner) dispatch(ctx context.Context, h extenv.Handle, tc model.TestCase) (model.Outcome, error) {
	switch tc.Kind {
	case model.KindExternal:
		if r.automation == nil {
			return model.Outcome{}, errors.New("no test environment automation configured")
		}
		return r.automation.Dispatch(ctx, h, tc)
	case model.KindNative:
		if r.natives == nil {
			return model.Outcome{}, errors.New("no native runner configured")
		}
		return r.natives.Invoke(ctx, tc)
	default:
		return model.Outcome{}, fmt.Errorf("unknown test case kind %q", tc.Kind)
	}
}

// RunEnvironment loads one environment, runs the cases of group in it and
// releases it. A load failure produces a failed summary instead of an
// error.
func (r *Runner) RunEnvironment(ctx context.Context, id model.EnvironmentID, group string, cases []model.TestCase) model.EnvironmentRunSummary {
	log := logging.For(ctx, "Runner").With("environment", id.Path, "group", group)
	start := r.now()

	h, err := r.load(ctx, id.Path)
	if err != nil {
		loadErr := hilerrors.EnvironmentLoad(id.Path, err)
		log.Error("environment failed to load", "error", err)
		return aggregate.LoadFailure(id, group, loadErr, start, r.now())
	}
	defer r.release(ctx, h, log)

	log.Info("running environment", "index", id.Index, "cases", model.EnabledCount(cases))
	s := r.Run(ctx, h, cases)
	s.Environment = id
	s.Group = group
	s.StartTime = start
	s.EndTime = r.now()
	log.Info("environment finished", "passed", s.Passed, "failed", s.Failed, "skipped", s.Skipped)
	return s
}

func (r *Runner) load(ctx context.Context, path string) (extenv.Handle, error) {
	if r.automation == nil {
		return "", errors.New("no test environment automation configured")
	}
	loadCtx, cancel := detached(ctx, r.opts.LoadTimeout)
	defer cancel()
	h, err := r.automation.Load(loadCtx, path)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("load timed out after %s: %w", r.opts.LoadTimeout, err)
	}
	return h, err
}

func (r *Runner) release(ctx context.Context, h extenv.Handle, log *slog.Logger) {
	relCtx, cancel := detached(ctx, r.opts.LoadTimeout)
	defer cancel()
	if err := r.automation.Release(relCtx, h); err != nil {
		log.Warn("failed to release environment", "error", err)
	}
}

// RunAll runs every environment in order, each against the group its file
// name resolves to. The stop signal carried by ctx is checked between
// environments; a stopped campaign is marked Interrupted and holds the
// environments that ran.
func (r *Runner) RunAll(ctx context.Context, paths []string, task *model.TaskConfig) model.CampaignSummary {
	log := logging.For(ctx, "Runner")
	return r.campaign(ctx, paths, task, func(path string) string {
		res := r.resolver.Resolve(path, task)
		for _, w := range res.Warnings {
			log.Warn(w)
		}
		return res.Group
	})
}

// RunSingle runs the default group in a single environment.
func (r *Runner) RunSingle(ctx context.Context, path string, task *model.TaskConfig) model.CampaignSummary {
	return r.campaign(ctx, []string{path}, task, func(string) string { return model.DefaultGroup })
}

func (r *Runner) campaign(ctx context.Context, paths []string, task *model.TaskConfig, groupFor func(string) string) model.CampaignSummary {
	log := logging.For(ctx, "Runner")
	start := r.now()

	summaries := make([]model.EnvironmentRunSummary, 0, len(paths))
	for i, path := range paths {
		if ctx.Err() != nil {
			log.Warn("stop requested, skipping remaining environments", "remaining", len(paths)-i)
			break
		}
		group := groupFor(path)
		cases, _ := task.Group(group)
		s := r.RunEnvironment(ctx, model.EnvironmentID{Index: i + 1, Path: path}, group, cases)
		summaries = append(summaries, s)
		if r.opts.OnEnvironment != nil {
			r.opts.OnEnvironment(s)
		}
	}

	c := aggregate.Reduce(summaries)
	c.ID = r.newID()
	c.Name = task.Name
	c.TotalEnvironments = len(paths)
	c.Interrupted = ctx.Err() != nil
	c.StartTime = start
	c.EndTime = r.now()
	return c
}

// detached returns a context that ignores cancellation of parent but
// carries its values and the given timeout.
func detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
