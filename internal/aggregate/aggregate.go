// Package aggregate reduces per-environment run summaries into campaign
// statistics.
package aggregate

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Count tallies results. ERROR counts as failed so that
// Total == Passed + Failed + Skipped.
func Count(results []model.TestResult) model.Stats {
	var s model.Stats
	for _, r := range results {
		switch {
		case r.Status == model.StatusPass:
			s.Passed++
		case r.Status == model.StatusSkip:
			s.Skipped++
		default:
			// FAIL, ERROR and anything unrecognized.
			s.Failed++
		}
	}
	s.Total = s.Passed + s.Failed + s.Skipped
	s.PassRate = model.PassRate(s.Passed, s.Total)
	return s
}

// Summarize builds the summary of one environment from its results.
// The results slice is copied.
func Summarize(env model.EnvironmentID, group string, results []model.TestResult) model.EnvironmentRunSummary {
	copied := append([]model.TestResult(nil), results...)
	s := model.EnvironmentRunSummary{
		Environment: env,
		Group:       group,
		Stats:       Count(copied),
		Results:     copied,
	}
	if len(copied) > 0 {
		s.StartTime = copied[0].StartTime
		s.EndTime = copied[len(copied)-1].EndTime
	}
	return s
}

// LoadFailure builds the summary of an environment that could not be
// loaded: no results, total 0, LoadError set.
func LoadFailure(env model.EnvironmentID, group string, err error, start, end time.Time) model.EnvironmentRunSummary {
	msg := "environment failed to load"
	if err != nil {
		msg = err.Error()
	}
	return model.EnvironmentRunSummary{
		Environment: env,
		Group:       group,
		LoadError:   msg,
		StartTime:   start,
		EndTime:     end,
	}
}

// Reduce combines environment summaries, in the given order, into a
// campaign summary. It never mutates its input and returns equal output
// for equal input. ID, Name and Interrupted are left for the caller.
func Reduce(summaries []model.EnvironmentRunSummary) model.CampaignSummary {
	c := model.CampaignSummary{
		TotalEnvironments: len(summaries),
		Environments:      make([]model.EnvironmentRunSummary, 0, len(summaries)),
		Combined:          []model.CombinedResult{},
	}
	for _, s := range summaries {
		s.Results = append([]model.TestResult(nil), s.Results...)
		c.Environments = append(c.Environments, s)

		if s.LoadFailed() {
			c.FailedEnvironments++
		} else {
			c.CompletedEnvironments++
		}
		c.Overall.Add(s.Stats)
		for _, r := range s.Results {
			c.Combined = append(c.Combined, model.CombinedResult{Environment: s.Environment, TestResult: r})
		}

		if !s.StartTime.IsZero() && (c.StartTime.IsZero() || s.StartTime.Before(c.StartTime)) {
			c.StartTime = s.StartTime
		}
		if s.EndTime.After(c.EndTime) {
			c.EndTime = s.EndTime
		}
	}
	c.Overall.Total = c.Overall.Passed + c.Overall.Failed + c.Overall.Skipped
	c.Overall.PassRate = model.PassRate(c.Overall.Passed, c.Overall.Total)
	return c
}

// FailedCases returns "environment: case" labels of every FAIL or ERROR
// result, plus one entry per environment that failed to load.
func FailedCases(c model.CampaignSummary) []string {
	var out []string
	for _, s := range c.Environments {
		name := EnvironmentName(s.Environment)
		if s.LoadFailed() {
			out = append(out, name+": "+s.LoadError)
			continue
		}
		for _, r := range s.Results {
			if r.Status.Failed() || !r.Status.Valid() {
				out = append(out, name+": "+r.TestName)
			}
		}
	}
	return out
}

// EnvironmentName is the display name of an environment: the file name
// without directory and extension.
func EnvironmentName(id model.EnvironmentID) string {
	base := id.Path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
