// Package integration contains integration tests for hilrun.
package integration

import (
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/AndreyAkinshin/hilrun/internal/config"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/project"
	"github.com/AndreyAkinshin/hilrun/internal/target"
)

var (
	fixturesDirOnce sync.Once
	fixturesDirPath string
)

// fixturesDir returns the path to the test fixtures directory.
// The result is cached for efficiency since runtime.Caller is relatively expensive.
func fixturesDir() string {
	fixturesDirOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		fixturesDirPath = filepath.Join(filepath.Dir(filename), "..", "fixtures")
	})
	return fixturesDirPath
}

func TestBenchProject_YAML(t *testing.T) {
	t.Parallel()
	fixtureDir := filepath.Join(fixturesDir(), "bench")

	proj, err := project.LoadFrom(filepath.Join(fixtureDir, "hilrun.yaml"))
	if err != nil {
		t.Fatalf("failed to load bench project: %v", err)
	}
	cfg := proj.Config

	if cfg.Mode != config.ModeMulti {
		t.Errorf("Mode = %q, want %q", cfg.Mode, config.ModeMulti)
	}
	if cfg.Environment.CheckCase != "Check_Bench" {
		t.Errorf("CheckCase = %q", cfg.Environment.CheckCase)
	}
	if cfg.Environment.LoadTimeout.Std() != 90*time.Second || cfg.Environment.TestTimeout.Std() != 5*time.Minute {
		t.Errorf("timeouts = %v / %v", cfg.Environment.LoadTimeout.Std(), cfg.Environment.TestTimeout.Std())
	}
	if cfg.Archive.BasePath != "results" || len(cfg.Archive.Formats) != 2 {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Flash.BackupDir != config.DefaultBackupDir {
		t.Errorf("BackupDir = %q, want default", cfg.Flash.BackupDir)
	}

	envs, err := proj.Environments()
	if err != nil {
		t.Fatalf("Environments() error = %v", err)
	}
	want := []string{
		filepath.Join(fixtureDir, "rig", "Test_Can.tse"),
		filepath.Join(fixtureDir, "rig", "Test_Diag.tse"),
	}
	if len(envs) != len(want) {
		t.Fatalf("Environments() = %v, want %v", envs, want)
	}
	for i := range want {
		if envs[i] != want[i] {
			t.Errorf("env[%d] = %q, want %q", i, envs[i], want[i])
		}
	}
}

func TestBenchProject_Task(t *testing.T) {
	t.Parallel()
	fixtureDir := filepath.Join(fixturesDir(), "bench")

	proj, err := project.LoadFrom(filepath.Join(fixtureDir, "hilrun.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	task, warnings, err := config.LoadTask(proj.Config.TaskPath(""))
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if task.Name != "bench-regression" || task.Version != "3.2" {
		t.Errorf("task = %q %q", task.Name, task.Version)
	}
	if task.Flash.Enabled {
		t.Error("flashing should be disabled")
	}

	names := task.GroupNames()
	wantNames := []string{model.DefaultGroup, "testcases_Can", "testcases_Diag"}
	if len(names) != len(wantNames) {
		t.Fatalf("GroupNames() = %v, want %v", names, wantNames)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("GroupNames()[%d] = %q, want %q", i, names[i], wantNames[i])
		}
	}
	can, _ := task.Group("testcases_Can")
	if model.EnabledCount(can) != 0 {
		t.Errorf("testcases_Can enabled = %d, want 0", model.EnabledCount(can))
	}
}

func TestGroupResolution(t *testing.T) {
	t.Parallel()
	fixtureDir := filepath.Join(fixturesDir(), "bench")

	proj, err := project.LoadFrom(filepath.Join(fixtureDir, "hilrun.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	task, _, err := config.LoadTask(proj.Config.TaskPath(""))
	if err != nil {
		t.Fatal(err)
	}
	envs, err := proj.Environments()
	if err != nil {
		t.Fatal(err)
	}

	rules := make([]target.Rule, 0, len(proj.Config.Environment.GroupRules))
	for _, r := range proj.Config.Environment.GroupRules {
		rules = append(rules, target.Rule{Marker: r.Marker, Group: r.Group})
	}
	resolver := target.NewResolver(rules)

	want := map[string]string{
		"Test_Can.tse":  "testcases_Can",
		"Test_Diag.tse": "testcases_Diag",
	}
	for _, env := range envs {
		got := resolver.Resolve(env, task).Group
		if got != want[filepath.Base(env)] {
			t.Errorf("Resolve(%s) = %q, want %q", filepath.Base(env), got, want[filepath.Base(env)])
		}
	}
}

func TestTomlProject(t *testing.T) {
	t.Parallel()
	fixtureDir := filepath.Join(fixturesDir(), "toml")

	proj, err := project.LoadFrom(filepath.Join(fixtureDir, "hilrun.toml"))
	if err != nil {
		t.Fatalf("failed to load toml project: %v", err)
	}
	cfg := proj.Config
	if cfg.Mode != config.ModeSingle {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if w := cfg.Notifications.Webhook; w == nil || !w.Enabled || w.Retries != 5 || w.Timeout.Std() != config.DefaultWebhookTimeout {
		t.Errorf("Webhook = %+v", w)
	}
	if len(cfg.Environment.GroupRules) != 1 || cfg.Environment.GroupRules[0].Group != "testcases_Body" {
		t.Errorf("GroupRules = %+v", cfg.Environment.GroupRules)
	}

	// The configured file does not exist; it is kept so the run records a
	// failed environment.
	envs, err := proj.Environments()
	if err != nil {
		t.Fatalf("Environments() error = %v", err)
	}
	if len(envs) != 1 || envs[0] != filepath.Join(fixtureDir, "rig", "Body.cfg") {
		t.Errorf("Environments() = %v", envs)
	}

	task, _, err := config.LoadTask(cfg.TaskPath(""))
	if err != nil {
		t.Fatal(err)
	}
	res := target.NewResolver([]target.Rule{{Marker: "body", Group: "testcases_Body"}}).Resolve(envs[0], task)
	if res.Group != "testcases_Body" || res.Marker != "body" {
		t.Errorf("Resolve() = %+v", res)
	}
}
