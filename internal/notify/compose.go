package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/AndreyAkinshin/hilrun/internal/aggregate"
	"github.com/AndreyAkinshin/hilrun/internal/model"
	"github.com/AndreyAkinshin/hilrun/internal/report"
)

// DefaultTemplates are the body templates used when none are configured.
// They are text/template templates with the sprig function library.
var DefaultTemplates = map[Kind]string{
	KindSuccess: `{{ .Name | default "Campaign" }} finished: all {{ .Total }} test case(s) passed ({{ .PassRateText }}) in {{ .Duration }}.
Environments:
{{- range .Environments }}
  {{ .Name }} [{{ .Group }}]: {{ .Passed }}/{{ .Total }} passed ({{ .PassRateText }})
{{- end }}`,

	KindFailure: `{{- if .Aborted -}}
{{ .Name | default "Campaign" }} aborted during {{ .Stage }} at {{ .Timestamp }}.
Reason: {{ .Reason }}
{{- else -}}
{{ .Name | default "Campaign" }} {{ if .Interrupted }}was interrupted after {{ len .Environments }} of {{ .TotalEnvironments }} environment(s){{ else }}finished with failures{{ end }}: {{ .Passed }}/{{ .Total }} passed ({{ .PassRateText }}) in {{ .Duration }}.
{{- if .FailedCases }}
Failed cases:
{{- range .FailedCases }}
  - {{ . }}
{{- end }}
{{- end }}
Environments:
{{- range .Environments }}
  {{ .Name }} [{{ .Group }}]: {{ if .LoadError }}load failed: {{ .LoadError | trunc 200 }}{{ else }}{{ .Passed }}/{{ .Total }} passed ({{ .PassRateText }}){{ end }}
{{- end }}
{{- end }}`,

	KindCustom: `{{ .Message }}
{{- if .Name }} ({{ .Name }}){{ end }}`,
}

// EnvironmentData is the per-environment breakdown handed to templates.
type EnvironmentData struct {
	Index        int
	Name         string
	Group        string
	Total        int
	Passed       int
	Failed       int
	Skipped      int
	PassRate     float64
	PassRateText string
	LoadError    string
}

// Composer renders payloads from templates.
type Composer struct {
	subjectPrefix string
	templates     map[Kind]*template.Template
}

// NewComposer parses the default templates overridden by the given ones,
// keyed by kind name.
func NewComposer(subjectPrefix string, overrides map[string]string) (*Composer, error) {
	for kind := range overrides {
		if !Kind(kind).Valid() {
			return nil, fmt.Errorf("unknown notification template kind %q", kind)
		}
	}
	c := &Composer{subjectPrefix: subjectPrefix, templates: make(map[Kind]*template.Template)}
	for kind, text := range DefaultTemplates {
		if o, ok := overrides[string(kind)]; ok && strings.TrimSpace(o) != "" {
			text = o
		}
		t, err := template.New(string(kind)).Funcs(sprig.TxtFuncMap()).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("notification template %s: %w", kind, err)
		}
		c.templates[kind] = t
	}
	return c, nil
}

// Completion renders the notification for a finished or interrupted
// campaign. The kind is success only when nothing failed, every
// environment loaded and the campaign ran to the end.
func (c *Composer) Completion(s model.CampaignSummary) (Kind, Payload, error) {
	kind := KindSuccess
	if s.Overall.Failed > 0 || s.FailedEnvironments > 0 || s.Interrupted {
		kind = KindFailure
	}
	data := map[string]any{
		"ID":                    s.ID,
		"Name":                  s.Name,
		"Total":                 s.Overall.Total,
		"Passed":                s.Overall.Passed,
		"Failed":                s.Overall.Failed,
		"Skipped":               s.Overall.Skipped,
		"PassRate":              s.Overall.PassRate,
		"PassRateText":          report.Percent(s.Overall.PassRate),
		"FailedCases":           aggregate.FailedCases(s),
		"Environments":          environments(s),
		"TotalEnvironments":     s.TotalEnvironments,
		"CompletedEnvironments": s.CompletedEnvironments,
		"FailedEnvironments":    s.FailedEnvironments,
		"Interrupted":           s.Interrupted,
		"Duration":              report.FormatDuration(s.Duration()),
		"Aborted":               false,
	}
	status := "PASSED"
	switch {
	case s.Interrupted:
		status = "INTERRUPTED"
	case kind == KindFailure:
		status = "FAILED"
	}
	subject := fmt.Sprintf("Test Result: %s %s (%s)", nameOr(s.Name), status, report.Percent(s.Overall.PassRate))
	p, err := c.render(kind, subject, data)
	if err != nil {
		return kind, p, err
	}
	var html bytes.Buffer
	if err := report.HTML(&html, s); err == nil {
		p.HTML = html.String()
	}
	return kind, p, nil
}

// Abort renders the failure notification for a campaign that stopped at
// stage.
func (c *Composer) Abort(name, stage string, reason error, at time.Time) (Kind, Payload, error) {
	msg := "unknown error"
	if reason != nil {
		msg = reason.Error()
	}
	data := map[string]any{
		"Name":      name,
		"Aborted":   true,
		"Stage":     stage,
		"Reason":    msg,
		"Timestamp": at.Format(time.RFC3339),
	}
	subject := fmt.Sprintf("Error: %s aborted during %s", nameOr(name), stage)
	p, err := c.render(KindFailure, subject, data)
	return KindFailure, p, err
}

// Custom renders a free-form notification.
func (c *Composer) Custom(name, subject, message string) (Kind, Payload, error) {
	data := map[string]any{"Name": name, "Message": message}
	p, err := c.render(KindCustom, subject, data)
	return KindCustom, p, err
}

func (c *Composer) render(kind Kind, subject string, data map[string]any) (Payload, error) {
	if c.subjectPrefix != "" {
		subject = c.subjectPrefix + " " + subject
	}
	p := Payload{Subject: subject, Data: data}
	var buf bytes.Buffer
	if err := c.templates[kind].Execute(&buf, data); err != nil {
		return p, fmt.Errorf("render %s notification: %w", kind, err)
	}
	p.Body = strings.TrimSpace(buf.String())
	return p, nil
}

func environments(s model.CampaignSummary) []EnvironmentData {
	out := make([]EnvironmentData, 0, len(s.Environments))
	for _, e := range s.Environments {
		out = append(out, EnvironmentData{
			Index:        e.Environment.Index,
			Name:         aggregate.EnvironmentName(e.Environment),
			Group:        e.Group,
			Total:        e.Total,
			Passed:       e.Passed,
			Failed:       e.Failed,
			Skipped:      e.Skipped,
			PassRate:     e.PassRate,
			PassRateText: report.Percent(e.PassRate),
			LoadError:    e.LoadError,
		})
	}
	return out
}

func nameOr(name string) string {
	if name == "" {
		return "campaign"
	}
	return name
}
