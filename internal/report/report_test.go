package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AndreyAkinshin/hilrun/internal/aggregate"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func sampleSummary() model.CampaignSummary {
	res := func(name string, status model.Status, ms int) model.TestResult {
		return model.TestResult{
			TestName:  name,
			TestKind:  model.KindExternal,
			Status:    status,
			StartTime: t0,
			EndTime:   t0.Add(time.Duration(ms) * time.Millisecond),
		}
	}
	timedOut := res("slow", model.StatusError, 2000)
	timedOut.TimedOut = true
	timedOut.ErrorMessage = "timed out after 2s"
	failed := res("frames", model.StatusFail, 150)
	failed.ErrorMessage = `expected "0x7F", got <none>`

	c := aggregate.Reduce([]model.EnvironmentRunSummary{
		aggregate.Summarize(model.EnvironmentID{Index: 1, Path: "/rigs/Test_Can.tse"}, "testcases_Can",
			[]model.TestResult{res("wakeup", model.StatusPass, 12), failed, timedOut}),
		aggregate.LoadFailure(model.EnvironmentID{Index: 2, Path: "/rigs/Test_Diag.tse"}, "testcases_Diag",
			errors.New("license expired"), t0, t0),
	})
	c.ID = "c-1"
	c.Name = "Nightly"
	c.StartTime = t0
	c.EndTime = t0.Add(3 * time.Second)
	return c
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YML", FormatYAML, false},
		{" md ", FormatMarkdown, false},
		{"txt", FormatText, false},
		{"html", FormatHTML, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestExtension(t *testing.T) {
	want := map[Format]string{
		FormatJSON: ".json", FormatYAML: ".yaml", FormatCSV: ".csv",
		FormatText: ".txt", FormatMarkdown: ".md", FormatHTML: ".html",
	}
	for _, f := range Formats() {
		if f.Extension() != want[f] {
			t.Errorf("%s.Extension() = %q, want %q", f, f.Extension(), want[f])
		}
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleSummary()); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	overall := got["overall"].(map[string]any)
	if overall["total"] != float64(3) || overall["failed"] != float64(2) {
		t.Errorf("overall = %v", overall)
	}
	envs := got["environments"].([]any)
	first := envs[0].(map[string]any)
	if first["passed"] != float64(1) {
		t.Errorf("environment stats not flattened: %v", first)
	}
	if envs[1].(map[string]any)["load_error"] == nil {
		t.Error("load_error missing")
	}
	combined := got["combined_results"].([]any)
	if len(combined) != 3 || combined[2].(map[string]any)["timed_out"] != true {
		t.Errorf("combined_results = %v", combined)
	}
	if d := combined[2].(map[string]any)["duration"]; d != 2.0 {
		t.Errorf("duration = %v, want 2", d)
	}
	if env, ok := combined[0].(map[string]any)["environment"].(map[string]any); !ok || env["path"] != "/rigs/Test_Can.tse" {
		t.Errorf("combined environment = %v", combined[0])
	}
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := YAML(&buf, sampleSummary()); err != nil {
		t.Fatal(err)
	}
	var got struct {
		Name         string `yaml:"name"`
		Environments []struct {
			Group  string `yaml:"group"`
			Failed int    `yaml:"failed"`
		} `yaml:"environments"`
		Combined []struct {
			Environment struct {
				Index int `yaml:"index"`
			} `yaml:"environment"`
			TestName string  `yaml:"test_name"`
			Duration float64 `yaml:"duration"`
		} `yaml:"combined_results"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if got.Name != "Nightly" || len(got.Environments) != 2 {
		t.Fatalf("decoded = %+v", got)
	}
	if got.Environments[0].Group != "testcases_Can" || got.Environments[0].Failed != 2 {
		t.Errorf("environment = %+v", got.Environments[0])
	}
	if len(got.Combined) != 3 || got.Combined[1].TestName != "frames" || got.Combined[1].Duration != 0.15 || got.Combined[1].Environment.Index != 1 {
		t.Errorf("combined_results = %+v", got.Combined)
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, sampleSummary()); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("len(records) = %d, want header + 3 results + 1 load failure", len(records))
	}
	if strings.Join(records[0], ",") != "Environment,Group,Test Case,Kind,Status,Duration,Message" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][0] != "Test_Can" || records[1][2] != "wakeup" || records[1][5] != "12ms" {
		t.Errorf("row 1 = %v", records[1])
	}
	if records[2][6] != `expected "0x7F", got <none>` {
		t.Errorf("message not round-tripped: %q", records[2][6])
	}
	if records[3][4] != "ERROR (timeout)" || records[3][5] != "2s" {
		t.Errorf("row 3 = %v", records[3])
	}
	if records[4][4] != "LOAD FAILED" || records[4][6] != "license expired" {
		t.Errorf("row 4 = %v", records[4])
	}
}

func TestTextAndMarkdown(t *testing.T) {
	c := sampleSummary()
	for _, f := range []Format{FormatText, FormatMarkdown} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, f, c); err != nil {
				t.Fatal(err)
			}
			// Table styles may upper-case headers and footers.
			out := strings.ToLower(buf.String())
			for _, want := range []string{"test_can", "wakeup", "frames", "load failed", "33.3%", "overall"} {
				if !strings.Contains(out, want) {
					t.Errorf("%s report missing %q", f, want)
				}
			}
		})
	}
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := HTML(&buf, sampleSummary()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>Nightly Test Report</title>",
		"<td>wakeup</td>",
		"load failed: license expired",
		"&lt;none&gt;",
		"ERROR (timeout)",
		"Campaign c-1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
	if strings.Contains(out, "<none>") {
		t.Error("HTML report does not escape messages")
	}
}

func TestHeadline(t *testing.T) {
	c := sampleSummary()
	c.Interrupted = true
	got := Headline(c)
	want := "1/2 environments completed, 1 passed, 2 failed, 0 skipped of 3 cases (33.3%) in 3s [interrupted]"
	if got != want {
		t.Errorf("Headline() = %q\nwant        %q", got, want)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "0.0%"},
		{0.5, "50.0%"},
		{1, "100.0%"},
		{2.0 / 3.0, "66.7%"},
	}
	for _, tt := range tests {
		if got := Percent(tt.rate); got != tt.want {
			t.Errorf("Percent(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0ms"},
		{12 * time.Millisecond, "12ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90*time.Second + 1234567*time.Microsecond, "1m31.235s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
