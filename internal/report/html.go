package report

import (
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/AndreyAkinshin/hilrun/internal/aggregate"
	"github.com/AndreyAkinshin/hilrun/internal/model"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"percent":  Percent,
	"duration": FormatDuration,
	"envName":  aggregate.EnvironmentName,
	"lower":    strings.ToLower,
	"stamp":    func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: #f8fafc; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; }
.page { max-width: 960px; margin: 20px auto; background: #fff; border-radius: 12px; box-shadow: 0 8px 32px rgba(0,0,0,.1); overflow: hidden; }
header { background: linear-gradient(135deg, #4facfe, #00f2fe); color: #fff; padding: 24px; text-align: center; }
header.aborted { background: linear-gradient(135deg, #ff6b6b, #ee5a52); }
.cards { display: grid; grid-template-columns: repeat(4, 1fr); gap: 16px; padding: 20px; }
.card { background: #eef2ff; border-radius: 10px; padding: 16px; text-align: center; }
.card b { display: block; font-size: 28px; }
table { width: calc(100% - 40px); margin: 0 20px 20px; border-collapse: collapse; }
th, td { padding: 8px 10px; border-bottom: 1px solid #e2e8f0; text-align: left; font-size: 14px; }
th { background: #667eea; color: #fff; }
.pass { color: #15803d; } .fail, .error, .load { color: #b91c1c; } .skip { color: #a16207; }
footer { background: #f8f9fa; color: #6c757d; font-size: 12px; padding: 16px; text-align: center; }
</style>
</head>
<body>
<div class="page">
<header{{if .C.Interrupted}} class="aborted"{{end}}>
<h1>{{.Title}}</h1>
<p>{{.Headline}}</p>
</header>
<div class="cards">
<div class="card"><b>{{.C.Overall.Total}}</b>Total</div>
<div class="card"><b class="pass">{{.C.Overall.Passed}}</b>Passed</div>
<div class="card"><b class="fail">{{.C.Overall.Failed}}</b>Failed</div>
<div class="card"><b>{{percent .C.Overall.PassRate}}</b>Pass Rate</div>
</div>
<h2 style="margin: 0 20px 10px">Environments</h2>
<table>
<tr><th>#</th><th>Environment</th><th>Group</th><th>Total</th><th>Passed</th><th>Failed</th><th>Skipped</th><th>Pass Rate</th></tr>
{{range .C.Environments}}{{if .LoadFailed}}<tr><td>{{.Environment.Index}}</td><td>{{envName .Environment}}</td><td>{{.Group}}</td><td colspan="5" class="load">load failed: {{.LoadError}}</td></tr>
{{else}}<tr><td>{{.Environment.Index}}</td><td>{{envName .Environment}}</td><td>{{.Group}}</td><td>{{.Total}}</td><td>{{.Passed}}</td><td>{{.Failed}}</td><td>{{.Skipped}}</td><td>{{percent .PassRate}}</td></tr>
{{end}}{{end}}</table>
<h2 style="margin: 0 20px 10px">Results</h2>
<table>
<tr><th>Environment</th><th>Test Case</th><th>Status</th><th>Duration</th><th>Message</th></tr>
{{range .C.Combined}}<tr><td>{{envName .Environment}}</td><td>{{.TestName}}</td><td class="{{lower (print .Status)}}">{{.Status}}{{if .TimedOut}} (timeout){{end}}</td><td>{{duration .Duration}}</td><td>{{.ErrorMessage}}</td></tr>
{{end}}</table>
<footer>Campaign {{.C.ID}} | {{stamp .C.StartTime}} to {{stamp .C.EndTime}}</footer>
</div>
</body>
</html>
`))

// HTML writes a self-contained HTML report.
func HTML(w io.Writer, c model.CampaignSummary) error {
	return htmlTemplate.Execute(w, struct {
		Title    string
		Headline string
		C        model.CampaignSummary
	}{title(c), Headline(c), c})
}
