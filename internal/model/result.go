package model

import (
	"encoding/json"
	"time"
)

// Status is the outcome of one test case.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
	StatusSkip  Status = "SKIP"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusError, StatusSkip:
		return true
	}
	return false
}

// Failed reports whether s counts as a failure in statistics.
// ERROR is a failure.
func (s Status) Failed() bool {
	return s == StatusFail || s == StatusError
}

// TestResult is the outcome of executing one enabled test case.
type TestResult struct {
	TestName     string         `json:"test_name" yaml:"test_name"`
	TestKind     Kind           `json:"test_kind" yaml:"test_kind"`
	Status       Status         `json:"status" yaml:"status"`
	StartTime    time.Time      `json:"start_time" yaml:"start_time"`
	EndTime      time.Time      `json:"end_time" yaml:"end_time"`
	ErrorMessage string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	TimedOut     bool           `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Details      map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Duration returns EndTime - StartTime, never negative.
func (r TestResult) Duration() time.Duration {
	d := r.EndTime.Sub(r.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// resultWithDuration adds the derived duration, in seconds, to the
// serialized form of a TestResult.
type resultWithDuration struct {
	resultFields `yaml:",inline"`
	Duration     float64 `json:"duration" yaml:"duration"`
}

type resultFields TestResult

func withDuration(r TestResult) resultWithDuration {
	return resultWithDuration{resultFields(r), r.Duration().Seconds()}
}

// MarshalJSON writes the result with its duration in seconds. The field is
// derived from the timestamps and ignored when decoding.
func (r TestResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(withDuration(r))
}

// MarshalYAML is the YAML counterpart of MarshalJSON.
func (r TestResult) MarshalYAML() (any, error) {
	return withDuration(r), nil
}

// EnvironmentID identifies one environment definition of a campaign.
type EnvironmentID struct {
	Index int    `json:"index" yaml:"index"` // 1-based position in the campaign
	Path  string `json:"path" yaml:"path"`
}

// Stats holds aggregated test counts.
// Total always equals Passed + Failed + Skipped.
type Stats struct {
	Total    int     `json:"total" yaml:"total"`
	Passed   int     `json:"passed" yaml:"passed"`
	Failed   int     `json:"failed" yaml:"failed"`
	Skipped  int     `json:"skipped" yaml:"skipped"`
	PassRate float64 `json:"pass_rate" yaml:"pass_rate"`
}

// Add accumulates other into s and recomputes the pass rate.
func (s *Stats) Add(other Stats) {
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Total = s.Passed + s.Failed + s.Skipped
	s.PassRate = PassRate(s.Passed, s.Total)
}

// PassRate returns passed/total, or 0 when total is 0.
func PassRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total)
}

// EnvironmentRunSummary is the outcome of running one environment.
type EnvironmentRunSummary struct {
	Environment EnvironmentID `json:"environment" yaml:"environment"`
	Group       string        `json:"group" yaml:"group"`
	Stats       `json:",inline" yaml:",inline"`
	Results     []TestResult `json:"results" yaml:"results"`
	LoadError   string       `json:"load_error,omitempty" yaml:"load_error,omitempty"`
	StartTime   time.Time    `json:"start_time" yaml:"start_time"`
	EndTime     time.Time    `json:"end_time" yaml:"end_time"`
}

// LoadFailed reports whether the environment could not be loaded.
func (s EnvironmentRunSummary) LoadFailed() bool {
	return s.LoadError != ""
}

// CombinedResult is a test result tagged with the environment it ran in.
type CombinedResult struct {
	Environment EnvironmentID `json:"environment" yaml:"environment"`
	TestResult  `json:",inline" yaml:",inline"`
}

type combinedWithDuration struct {
	Environment        EnvironmentID `json:"environment" yaml:"environment"`
	resultWithDuration `yaml:",inline"`
}

// MarshalJSON keeps the environment next to the flattened result; without
// it the embedded TestResult marshaler would drop the environment.
func (c CombinedResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(combinedWithDuration{c.Environment, withDuration(c.TestResult)})
}

// MarshalYAML is the YAML counterpart of MarshalJSON.
func (c CombinedResult) MarshalYAML() (any, error) {
	return combinedWithDuration{c.Environment, withDuration(c.TestResult)}, nil
}

// CampaignSummary aggregates all environments of one campaign.
type CampaignSummary struct {
	ID                    string                  `json:"id" yaml:"id"`
	Name                  string                  `json:"name" yaml:"name"`
	TotalEnvironments     int                     `json:"total_environments" yaml:"total_environments"`
	CompletedEnvironments int                     `json:"completed_environments" yaml:"completed_environments"`
	FailedEnvironments    int                     `json:"failed_environments" yaml:"failed_environments"`
	Overall               Stats                   `json:"overall" yaml:"overall"`
	Environments          []EnvironmentRunSummary `json:"environments" yaml:"environments"`
	Combined              []CombinedResult        `json:"combined_results" yaml:"combined_results"`
	Interrupted           bool                    `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	StartTime             time.Time               `json:"start_time" yaml:"start_time"`
	EndTime               time.Time               `json:"end_time" yaml:"end_time"`
}

// Duration returns the campaign wall-clock time.
func (c CampaignSummary) Duration() time.Duration {
	d := c.EndTime.Sub(c.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Outcome is what a dispatcher reports for one test case before the
// executor stamps it with timing into a TestResult.
type Outcome struct {
	Status  Status         `json:"status" yaml:"status"`
	Message string         `json:"message,omitempty" yaml:"message,omitempty"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}
