// Package envcheck decides whether the test bench is ready before a
// campaign starts.
package envcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// DefaultCheckCase is the external case run in the check environment.
const DefaultCheckCase = "Check_Environment"

// EnvironmentRunner runs cases in one environment. *runner.Runner
// implements it.
type EnvironmentRunner interface {
	RunEnvironment(ctx context.Context, id model.EnvironmentID, group string, cases []model.TestCase) model.EnvironmentRunSummary
}

// Readiness is the outcome of an environment check.
type Readiness struct {
	Ready    bool
	Problems []string
	Result   *model.TestResult // outcome of the check case, if one ran
}

// Checker verifies required paths and, when CheckPath is set, runs the
// check case inside that environment. The bench is ready when every path
// exists and the check case passes.
type Checker struct {
	BaseDir       string   // resolves relative paths
	RequiredPaths []string // files or directories that must exist
	CheckPath     string   // environment definition that hosts the check case
	CheckCase     string   // defaults to DefaultCheckCase
	Runner        EnvironmentRunner
}

// Check runs all checks. A bench that is not ready yields an
// environment error that lists every problem.
func (c *Checker) Check(ctx context.Context) (Readiness, error) {
	log := logging.For(ctx, "EnvCheck")
	var r Readiness

	for _, p := range c.RequiredPaths {
		path := c.resolve(p)
		if _, err := os.Stat(path); err != nil {
			r.Problems = append(r.Problems, fmt.Sprintf("required path %s is not accessible: %v", path, err))
		}
	}

	if c.CheckPath != "" {
		res, problem := c.runCheckCase(ctx)
		r.Result = res
		if problem != "" {
			r.Problems = append(r.Problems, problem)
		}
	}

	r.Ready = len(r.Problems) == 0
	if !r.Ready {
		for _, p := range r.Problems {
			log.Error("environment check failed", "problem", p)
		}
		return r, hilerrors.Environmentf("environment not ready: %s", strings.Join(r.Problems, "; "))
	}
	log.Info("environment ready")
	return r, nil
}

func (c *Checker) runCheckCase(ctx context.Context) (*model.TestResult, string) {
	if c.Runner == nil {
		return nil, "check environment configured but no runner available"
	}
	name := c.CheckCase
	if name == "" {
		name = DefaultCheckCase
	}
	tc := model.TestCase{
		Name:     name,
		Kind:     model.KindExternal,
		Enabled:  true,
		External: &model.ExternalCase{Function: name},
	}
	path := c.resolve(c.CheckPath)
	s := c.Runner.RunEnvironment(ctx, model.EnvironmentID{Index: 0, Path: path}, model.DefaultGroup, []model.TestCase{tc})
	if s.LoadFailed() {
		return nil, fmt.Sprintf("check environment %s: %s", path, s.LoadError)
	}
	if len(s.Results) != 1 {
		return nil, fmt.Sprintf("check case %s produced no result", name)
	}
	res := s.Results[0]
	if res.Status != model.StatusPass {
		msg := fmt.Sprintf("check case %s reported %s", name, res.Status)
		if res.ErrorMessage != "" {
			msg += ": " + res.ErrorMessage
		}
		return &res, msg
	}
	return &res, ""
}

func (c *Checker) resolve(p string) string {
	if filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}
