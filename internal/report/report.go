// Package report serializes campaign summaries to hierarchical (JSON,
// YAML) and tabular (CSV, text, markdown, HTML) forms.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/AndreyAkinshin/hilrun/internal/aggregate"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

// Format is a report serialization.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

var formats = []Format{FormatJSON, FormatYAML, FormatCSV, FormatText, FormatMarkdown, FormatHTML}

// Formats returns every supported format.
func Formats() []Format {
	return append([]Format(nil), formats...)
}

// ParseFormat parses a format name. "yml", "md" and "txt" are accepted as
// aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Extension returns the file extension for f, with leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	}
	return "." + string(f)
}

// Write serializes c in format f.
func Write(w io.Writer, f Format, c model.CampaignSummary) error {
	switch f {
	case FormatJSON:
		return JSON(w, c)
	case FormatYAML:
		return YAML(w, c)
	case FormatCSV:
		return CSV(w, c)
	case FormatText:
		return Text(w, c)
	case FormatMarkdown:
		return Markdown(w, c)
	case FormatHTML:
		return HTML(w, c)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// JSON writes the full summary as indented JSON.
func JSON(w io.Writer, c model.CampaignSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// YAML writes the full summary as YAML.
func YAML(w io.Writer, c model.CampaignSummary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// detailHeader is the column set of the combined results table.
var detailHeader = []string{"Environment", "Group", "Test Case", "Kind", "Status", "Duration", "Message"}

func detailRows(c model.CampaignSummary) [][]string {
	rows := make([][]string, 0, len(c.Combined)+c.FailedEnvironments)
	for _, s := range c.Environments {
		name := aggregate.EnvironmentName(s.Environment)
		if s.LoadFailed() {
			rows = append(rows, []string{name, s.Group, "", "", "LOAD FAILED", "", s.LoadError})
			continue
		}
		for _, r := range s.Results {
			status := string(r.Status)
			if r.TimedOut {
				status += " (timeout)"
			}
			rows = append(rows, []string{
				name, s.Group, r.TestName, string(r.TestKind), status,
				FormatDuration(r.Duration()), r.ErrorMessage,
			})
		}
	}
	return rows
}

// CSV writes one row per test result: environment, group, test case,
// kind, status, duration and message. Environments that failed to load
// appear as a single LOAD FAILED row.
func CSV(w io.Writer, c model.CampaignSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(detailHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(detailRows(c)); err != nil {
		return err
	}
	return cw.Error()
}

// DetailTable builds the combined results table.
func DetailTable(c model.CampaignSummary) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(toRow(detailHeader))
	for _, r := range detailRows(c) {
		t.AppendRow(toRow(r))
	}
	return t
}

// EnvironmentTable builds the per-environment statistics table with an
// overall footer.
func EnvironmentTable(c model.CampaignSummary) table.Writer {
	p := printer()
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Environment", "Group", "Total", "Passed", "Failed", "Skipped", "Pass Rate"})
	for _, s := range c.Environments {
		name := aggregate.EnvironmentName(s.Environment)
		if s.LoadFailed() {
			t.AppendRow(table.Row{s.Environment.Index, name, s.Group, "-", "-", "-", "-", "load failed"})
			continue
		}
		t.AppendRow(table.Row{
			s.Environment.Index, name, s.Group,
			p.Sprintf("%d", s.Total), p.Sprintf("%d", s.Passed), p.Sprintf("%d", s.Failed), p.Sprintf("%d", s.Skipped),
			Percent(s.PassRate),
		})
	}
	o := c.Overall
	t.AppendFooter(table.Row{
		"", "Overall", "",
		p.Sprintf("%d", o.Total), p.Sprintf("%d", o.Passed), p.Sprintf("%d", o.Failed), p.Sprintf("%d", o.Skipped),
		Percent(o.PassRate),
	})
	return t
}

// Text writes a plain-text report with the environment and detail tables.
func Text(w io.Writer, c model.CampaignSummary) error {
	var b strings.Builder
	b.WriteString(Headline(c))
	b.WriteString("\n\n")
	b.WriteString(EnvironmentTable(c).Render())
	b.WriteString("\n\n")
	b.WriteString(DetailTable(c).Render())
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown writes the report as GitHub-flavored markdown.
func Markdown(w io.Writer, c model.CampaignSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n", title(c), Headline(c))
	b.WriteString("## Environments\n\n")
	b.WriteString(EnvironmentTable(c).RenderMarkdown())
	b.WriteString("\n\n## Results\n\n")
	b.WriteString(DetailTable(c).RenderMarkdown())
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Headline summarizes c in one line.
func Headline(c model.CampaignSummary) string {
	p := printer()
	s := p.Sprintf("%d/%d environments completed, %d passed, %d failed, %d skipped of %d cases (%s) in %s",
		c.CompletedEnvironments, c.TotalEnvironments,
		c.Overall.Passed, c.Overall.Failed, c.Overall.Skipped, c.Overall.Total,
		Percent(c.Overall.PassRate), FormatDuration(c.Duration()))
	if c.Interrupted {
		s += " [interrupted]"
	}
	return s
}

func title(c model.CampaignSummary) string {
	if c.Name == "" {
		return "Test Campaign Report"
	}
	return c.Name + " Test Report"
}

// Percent formats a pass rate in [0,1] as a percentage with one decimal.
func Percent(rate float64) string {
	return printer().Sprintf("%.1f%%", rate*100)
}

// FormatDuration renders d rounded to milliseconds.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
	return d.Round(time.Millisecond).String()
}

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
