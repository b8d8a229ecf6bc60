package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/AndreyAkinshin/hilrun/internal/aggregate"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// newTestWriter creates a Writer with captured output for testing.
func newTestWriter() (*Writer, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	w := &Writer{
		out:   stdout,
		err:   stderr,
		color: false, // Disable color for predictable test output
		quiet: false,
	}
	return w, stdout, stderr
}

func TestNew(t *testing.T) {
	w := New()
	if w == nil {
		t.Fatal("New() returned nil")
	}
	if w.out == nil {
		t.Error("out writer is nil")
	}
	if w.err == nil {
		t.Error("err writer is nil")
	}
}

func TestWriter_SetQuiet(t *testing.T) {
	w, _, _ := newTestWriter()

	w.SetQuiet(true)
	if !w.quiet {
		t.Error("SetQuiet(true) did not set quiet")
	}

	w.SetQuiet(false)
	if w.quiet {
		t.Error("SetQuiet(false) did not unset quiet")
	}
}

func TestWriter_Print(t *testing.T) {
	w, stdout, _ := newTestWriter()

	w.Print("hello %s", "world")

	if got := stdout.String(); got != "hello world" {
		t.Errorf("Print() = %q, want %q", got, "hello world")
	}
}

func TestWriter_Println(t *testing.T) {
	w, stdout, _ := newTestWriter()

	w.Println("hello %s", "world")

	if got := stdout.String(); got != "hello world\n" {
		t.Errorf("Println() = %q, want %q", got, "hello world\n")
	}
}

func TestWriter_Error(t *testing.T) {
	w, _, stderr := newTestWriter()

	w.Error("error %d", 42)

	if got := stderr.String(); got != "error 42" {
		t.Errorf("Error() = %q, want %q", got, "error 42")
	}
}

func TestWriter_Errorln(t *testing.T) {
	w, _, stderr := newTestWriter()

	w.Errorln("error %d", 42)

	if got := stderr.String(); got != "error 42\n" {
		t.Errorf("Errorln() = %q, want %q", got, "error 42\n")
	}
}

func TestWriter_Info(t *testing.T) {
	tests := []struct {
		name   string
		quiet  bool
		expect string
	}{
		{"normal mode", false, "info message\n"},
		{"quiet mode", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, stdout, _ := newTestWriter()
			w.quiet = tt.quiet

			w.Info("info %s", "message")

			if got := stdout.String(); got != tt.expect {
				t.Errorf("Info() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestWriter_Success(t *testing.T) {
	tests := []struct {
		name   string
		color  bool
		expect string
	}{
		{"without color", false, "done\n"},
		{"with color", true, "\033[32mdone\033[0m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, stdout, _ := newTestWriter()
			w.color = tt.color

			w.Success("done")

			if got := stdout.String(); got != tt.expect {
				t.Errorf("Success() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestWriter_Warning(t *testing.T) {
	tests := []struct {
		name   string
		color  bool
		expect string
	}{
		{"without color", false, "warning: caution\n"},
		{"with color", true, "\033[33mwarning: caution\033[0m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, stderr := newTestWriter()
			w.color = tt.color

			w.Warning("caution")

			if got := stderr.String(); got != tt.expect {
				t.Errorf("Warning() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestWriter_Section(t *testing.T) {
	tests := []struct {
		name   string
		quiet  bool
		color  bool
		expect string
	}{
		{"normal without color", false, false, "\n=== Environments ===\n"},
		{"normal with color", false, true, "\n\033[1m=== Environments ===\033[0m\n"},
		{"quiet mode", true, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, stdout, _ := newTestWriter()
			w.quiet = tt.quiet
			w.color = tt.color

			w.Section("Environments")

			if got := stdout.String(); got != tt.expect {
				t.Errorf("Section() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestWriter_List(t *testing.T) {
	w, stdout, _ := newTestWriter()

	w.List([]string{"item1", "item2", "item3"})

	expected := "  - item1\n  - item2\n  - item3\n"
	if got := stdout.String(); got != expected {
		t.Errorf("List() = %q, want %q", got, expected)
	}
}

func TestWriter_List_Empty(t *testing.T) {
	w, stdout, _ := newTestWriter()

	w.List([]string{})

	if got := stdout.String(); got != "" {
		t.Errorf("List() with empty slice = %q, want empty", got)
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CONFIG_VALIDATED", "Config Validated"},
		{"PASS", "Pass"},
		{"IN_PROGRESS", "In Progress"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Title(tt.in); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriter_Stage(t *testing.T) {
	tests := []struct {
		name   string
		quiet  bool
		color  bool
		reason string
		expect string
	}{
		{"normal without color", false, false, "", "─── [ENV_CHECKED] Env Checked ───\n"},
		{"with reason", false, false, "stop requested", "─── [ENV_CHECKED] Env Checked ───\n    stop requested\n"},
		{"normal with color", false, true, "", "\033[1m\033[36m─── [ENV_CHECKED] Env Checked ───\033[0m\n"},
		{"quiet mode", true, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, stdout, _ := newTestWriter()
			w.quiet = tt.quiet
			w.color = tt.color

			w.Stage("ENV_CHECKED", tt.reason)

			if got := stdout.String(); got != tt.expect {
				t.Errorf("Stage() = %q, want %q", got, tt.expect)
			}
		})
	}
}

var t0 = time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)

func envSummary() model.EnvironmentRunSummary {
	return aggregate.Summarize(
		model.EnvironmentID{Index: 1, Path: "/rigs/Test_Diag.tse"},
		"testcases_Diag",
		[]model.TestResult{
			{TestName: "Init", Status: model.StatusPass, StartTime: t0, EndTime: t0.Add(1500 * time.Millisecond)},
			{TestName: "Read_DTC", Status: model.StatusFail, StartTime: t0, EndTime: t0.Add(2 * time.Second), ErrorMessage: "DTC 0x1234 set"},
		},
	)
}

func TestWriter_Environment(t *testing.T) {
	w, stdout, _ := newTestWriter()
	w.Environment(envSummary())
	want := "x Test_Diag [testcases_Diag]: 1/2 passed, 1 failed, 0 skipped (50.0%)\n"
	if got := stdout.String(); got != want {
		t.Errorf("Environment() = %q, want %q", got, want)
	}

	w, stdout, _ = newTestWriter()
	w.SetVerbose(true)
	w.Environment(envSummary())
	for _, line := range []string{
		"    + Init                 Pass 1.5s\n",
		"    x Read_DTC             Fail 2s  (DTC 0x1234 set)\n",
	} {
		if !strings.Contains(stdout.String(), line) {
			t.Errorf("verbose output missing %q:\n%s", line, stdout.String())
		}
	}
}

func TestWriter_Environment_LoadFailed(t *testing.T) {
	w, stdout, _ := newTestWriter()
	s := aggregate.LoadFailure(model.EnvironmentID{Index: 2, Path: "/rigs/Test_Can.tse"}, "testcases_Can", errEnv("timeout"), t0, t0)
	w.Environment(s)
	want := "x Test_Can [testcases_Can] load failed: timeout\n"
	if got := stdout.String(); got != want {
		t.Errorf("Environment() = %q, want %q", got, want)
	}

	w, stdout, _ = newTestWriter()
	w.SetQuiet(true)
	w.Environment(s)
	if stdout.Len() != 0 {
		t.Errorf("quiet Environment() wrote %q", stdout.String())
	}
}

type errEnv string

func (e errEnv) Error() string { return string(e) }

func TestWriter_Campaign(t *testing.T) {
	c := aggregate.Reduce([]model.EnvironmentRunSummary{envSummary()})
	c.ID = "c0ffee"
	c.TotalEnvironments = 1
	c.StartTime, c.EndTime = t0, t0.Add(3*time.Second)

	w, stdout, _ := newTestWriter()
	w.Campaign(c)

	out := stdout.String()
	for _, want := range []string{
		"=== Execution Summary ===",
		"Test_Diag",
		"Failed Cases:",
		"Test_Diag: Read_DTC",
		"Campaign: c0ffee",
		"Elapsed: 3s",
		"1/1 environments completed, 1 passed, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Campaign() output missing %q:\n%s", want, out)
		}
	}
}

func TestWriter_Flash(t *testing.T) {
	w, stdout, _ := newTestWriter()
	w.Flash(model.FlashOutcome{
		BackupPath: "/backups/device.bak",
		Restored:   true,
		Attempts: []model.FlashAttempt{
			{Number: 1, Status: model.AttemptFailed, Error: "no ack"},
			{Number: 2, Status: model.AttemptFailed, Error: "no ack"},
		},
	})
	out := stdout.String()
	for _, want := range []string{
		"  Flash Attempts:\n",
		"    x attempt 1            Failed  (no ack)\n",
		"  Backup restored: /backups/device.bak\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Flash() output missing %q:\n%s", want, out)
		}
	}
}

func TestWriter_ErrorPrefix(t *testing.T) {
	w, _, stderr := newTestWriter()
	w.ErrorPrefix("task %s not found", "task.json")
	if got := stderr.String(); got != "hilrun: task task.json not found\n" {
		t.Errorf("ErrorPrefix() = %q", got)
	}
}
