// Package model provides the data types shared by the campaign packages.
// It has no dependencies on other internal packages so that config, runner,
// aggregate, report and pipeline can all import it.
package model

import (
	"sort"
	"time"
)

// DefaultGroup is the task configuration key of the default test-case group.
const DefaultGroup = "test_cases"

// GroupPrefix is the key prefix of named alternate test-case groups.
const GroupPrefix = "testcases_"

// Kind identifies how a test case is dispatched.
type Kind string

const (
	// KindExternal cases run inside the external test environment.
	KindExternal Kind = "external"
	// KindNative cases run in-process through the native registry.
	KindNative Kind = "native"
)

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	return k == KindExternal || k == KindNative
}

// ExternalCase addresses a test function inside the external environment.
type ExternalCase struct {
	Module   string `json:"module" yaml:"module"`
	Function string `json:"function" yaml:"function"`
}

// NativeCase addresses an in-process test function.
type NativeCase struct {
	File     string `json:"file" yaml:"file"`
	Function string `json:"function" yaml:"function"`
}

// TestCase is a single entry of a test-case group. Exactly one of External
// and Native is set, matching Kind.
type TestCase struct {
	Name       string         `json:"name" yaml:"name"`
	Kind       Kind           `json:"kind" yaml:"kind"`
	Enabled    bool           `json:"enabled" yaml:"enabled"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	External   *ExternalCase  `json:"external,omitempty" yaml:"external,omitempty"`
	Native     *NativeCase    `json:"native,omitempty" yaml:"native,omitempty"`
}

// Timeout returns the per-case timeout override from the "timeout"
// parameter (seconds), or def if the parameter is absent or invalid.
func (tc TestCase) Timeout(def time.Duration) time.Duration {
	switch v := tc.Parameters["timeout"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case int64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// Package is a deliverable staged before flashing.
type Package struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source" yaml:"source"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// PackageConfig describes the package staging stage.
type PackageConfig struct {
	Enabled  bool      `json:"enabled" yaml:"enabled"`
	Packages []Package `json:"packages,omitempty" yaml:"packages,omitempty"`
}

// FlashConfig describes the firmware flashing stage.
type FlashConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	FilePath          string        `json:"file_path" yaml:"file_path"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	UsePackageManager bool          `json:"use_package_manager" yaml:"use_package_manager"`
}

// TaskConfig is a loaded task configuration. It is not modified after
// loading.
type TaskConfig struct {
	Name      string                `json:"name" yaml:"name"`
	Version   string                `json:"version" yaml:"version"`
	Dir       string                `json:"-" yaml:"-"` // directory the task file was read from
	Packages  PackageConfig         `json:"package_config" yaml:"package_config"`
	Flash     FlashConfig           `json:"flash_config" yaml:"flash_config"`
	TestCases []TestCase            `json:"test_cases" yaml:"test_cases"`
	Groups    map[string][]TestCase `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Group returns the cases of the named group. DefaultGroup names the
// default group. The boolean is false if no such group exists.
func (t *TaskConfig) Group(name string) ([]TestCase, bool) {
	if name == DefaultGroup {
		return t.TestCases, true
	}
	cases, ok := t.Groups[name]
	return cases, ok
}

// HasGroup reports whether the named group exists.
func (t *TaskConfig) HasGroup(name string) bool {
	_, ok := t.Group(name)
	return ok
}

// GroupNames returns the default group followed by the named groups in
// sorted order.
func (t *TaskConfig) GroupNames() []string {
	names := make([]string, 0, len(t.Groups))
	for name := range t.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{DefaultGroup}, names...)
}

// EnabledCount returns the number of enabled cases in the slice.
func EnabledCount(cases []TestCase) int {
	n := 0
	for _, c := range cases {
		if c.Enabled {
			n++
		}
	}
	return n
}
