package target

import (
	"strings"
	"testing"

	"github.com/AndreyAkinshin/hilrun/internal/model"
)

var defaultRules = []Rule{
	{Marker: "diag", Group: "testcases_Diag"},
	{Marker: "can", Group: "testcases_Can"},
	{Marker: "frame", Group: "testcases_Can"},
	{Marker: "network", Group: "testcases_Can"},
	{Marker: "net", Group: "testcases_Can"},
}

func sampleTask(groups ...string) *model.TaskConfig {
	task := &model.TaskConfig{
		Name:      "t",
		TestCases: []model.TestCase{{Name: "default"}},
		Groups:    map[string][]model.TestCase{},
	}
	for _, g := range groups {
		task.Groups[g] = []model.TestCase{{Name: g}}
	}
	return task
}

func TestResolve(t *testing.T) {
	task := sampleTask("testcases_Diag", "testcases_Can")
	r := NewResolver(defaultRules)

	tests := []struct {
		path   string
		group  string
		marker string
	}{
		{"rig/Test_Diag_Module1.tse", "testcases_Diag", "diag"},
		{"rig/Test_CAN_Bus.tse", "testcases_Can", "can"},
		{`C:\rigs\Frame_Timing.tse`, "testcases_Can", "frame"},
		{"Network_Mgmt.tse", "testcases_Can", "network"},
		{"Smoke.tse", model.DefaultGroup, ""},
		{"rig.diag/Smoke.tse", model.DefaultGroup, ""},
		{"DiagOverCan.tse", "testcases_Diag", "diag"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := r.Resolve(tt.path, task)
			if res.Group != tt.group {
				t.Errorf("Group = %q, want %q", res.Group, tt.group)
			}
			if res.Marker != tt.marker {
				t.Errorf("Marker = %q, want %q", res.Marker, tt.marker)
			}
			if len(res.Warnings) != 0 {
				t.Errorf("Warnings = %v, want none", res.Warnings)
			}
		})
	}
}

func TestResolve_MissingGroupSkippedWithWarning(t *testing.T) {
	task := sampleTask("testcases_Can")
	r := NewResolver(defaultRules)

	res := r.Resolve("Test_Diag_Can.tse", task)
	if res.Group != "testcases_Can" {
		t.Errorf("Group = %q, want testcases_Can", res.Group)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "testcases_Diag") {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}

func TestResolve_AllMissingFallsBackToDefault(t *testing.T) {
	res := NewResolver(defaultRules).Resolve("Test_Diag.tse", sampleTask())
	if res.Group != model.DefaultGroup {
		t.Errorf("Group = %q, want %q", res.Group, model.DefaultGroup)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want 1", res.Warnings)
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	task := sampleTask("testcases_A", "testcases_B")
	r := NewResolver([]Rule{
		{Marker: "bench", Group: "testcases_B"},
		{Marker: "bench", Group: "testcases_A"},
	})
	if got := r.Resolve("bench.tse", task).Group; got != "testcases_B" {
		t.Errorf("Group = %q, want testcases_B", got)
	}
}

func TestResolve_EmptyMarkerIgnored(t *testing.T) {
	task := sampleTask("testcases_A")
	r := NewResolver([]Rule{{Marker: "", Group: "testcases_A"}})
	if got := r.Resolve("anything.tse", task).Group; got != model.DefaultGroup {
		t.Errorf("Group = %q, want default", got)
	}
}

func TestNewResolver_CopiesRules(t *testing.T) {
	rules := []Rule{{Marker: "diag", Group: "testcases_Diag"}}
	r := NewResolver(rules)
	rules[0].Marker = "changed"
	if r.Rules()[0].Marker != "diag" {
		t.Error("resolver shares the caller's slice")
	}
}

func TestStemOf(t *testing.T) {
	tests := map[string]string{
		"a/b/Test_Diag.tse":  "test_diag",
		`C:\x\Y.TSE`:         "y",
		"noext":              "noext",
		"dir.v2/File.v1.tse": "file.v1",
	}
	for in, want := range tests {
		if got := StemOf(in); got != want {
			t.Errorf("StemOf(%q) = %q, want %q", in, got, want)
		}
	}
}
