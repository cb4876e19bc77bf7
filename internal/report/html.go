package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ternarybob/runner-usage/internal/models"
)

type htmlStat struct {
	Label string
	Value string
}

type htmlBar struct {
	Name    string
	Jobs    int
	Percent float64
}

type htmlData struct {
	Meta        Meta
	Empty       bool
	Grouped     bool
	GroupKey    models.GroupKey
	Filters     string
	Stats       []htmlStat
	RepoChart   []htmlBar
	LabelChart  []htmlBar
	Groups      []models.GroupStats
	Records     []models.AnalysisRecord
	SummaryHTML template.HTML
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"rate":        formatRate,
	"seconds":     formatSeconds,
	"duration":    FormatDuration,
	"time":        formatTime,
	"join":        strings.Join,
	"statusClass": statusClass,
	"rateClass":   rateClass,
	"percent":     func(f float64) string { return fmt.Sprintf("%.1f", f) },
	"plural":      jobsText,
}).Parse(htmlSource))

// WriteHTML renders the dashboard. summary is the markdown from Summary, embedded
// as rendered HTML.
func WriteHTML(w io.Writer, result *models.AnalysisResult, meta Meta, summary string, opts Options) error {
	data := htmlData{
		Meta:    meta,
		Filters: criteriaText(meta.Criteria),
		Empty:   result == nil || result.Overall.Jobs == 0,
	}

	if !data.Empty {
		overall := result.Overall
		data.Grouped = result.IsGrouped()
		data.GroupKey = result.GroupKey
		data.Stats = []htmlStat{
			{Label: "Total Jobs", Value: fmt.Sprintf("%d", overall.Jobs)},
			{Label: "Repositories", Value: fmt.Sprintf("%d", overall.Repositories)},
			{Label: "Workflows", Value: fmt.Sprintf("%d", uniqueWorkflows(result.Records))},
			{Label: "Success Rate", Value: formatRate(overall.SuccessRate)},
			{Label: "Mean Duration", Value: formatSeconds(overall.MeanDurationSeconds)},
			{Label: "P95 Duration", Value: formatSeconds(overall.P95DurationSeconds)},
		}
		data.RepoChart = bars(TopRepositories(result.Records, opts.topN()))
		data.LabelChart = bars(TopLabels(result.Records, opts.topN()))
		data.Groups = result.Groups
		data.Records = result.Records

		rendered, err := renderMarkdown(summary)
		if err != nil {
			return fmt.Errorf("failed to render summary markdown: %w", err)
		}
		data.SummaryHTML = rendered
	}

	return htmlTemplate.Execute(w, data)
}

// renderMarkdown converts GitHub-flavored markdown to HTML. Raw HTML in the
// input is dropped by goldmark's default renderer.
func renderMarkdown(markdown string) (template.HTML, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func bars(counts []Count) []htmlBar {
	if len(counts) == 0 {
		return nil
	}
	top := counts[0].Jobs
	for _, c := range counts {
		if c.Jobs > top {
			top = c.Jobs
		}
	}
	result := make([]htmlBar, len(counts))
	for i, c := range counts {
		name := c.Name
		if r := []rune(name); len(r) > 30 {
			name = string(r[:27]) + "..."
		}
		result[i] = htmlBar{Name: name, Jobs: c.Jobs, Percent: float64(c.Jobs) / float64(top) * 100}
	}
	return result
}

func statusClass(status string) string {
	switch strings.ToLower(status) {
	case models.StatusCompleted, models.StatusSuccess:
		return "badge-success"
	case models.StatusFailure, models.StatusCancelled, models.StatusTimedOut:
		return "badge-failure"
	case models.StatusInProgress, models.StatusQueued, models.StatusWaiting:
		return "badge-in-progress"
	default:
		return "badge-default"
	}
}

func rateClass(rate float64) string {
	switch {
	case rate > 0.8:
		return "badge-success"
	case rate < 0.5:
		return "badge-failure"
	default:
		return "badge-in-progress"
	}
}

const htmlSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Runner Usage Report - {{.Meta.Org}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: #f6f8fa; color: #24292f; margin: 0; padding: 2rem; }
.container { max-width: 1200px; margin: 0 auto; }
.card { background: #fff; border-radius: 8px; box-shadow: 0 2px 8px rgba(0,0,0,0.1); padding: 1.5rem; margin-bottom: 1.5rem; }
.empty { max-width: 600px; margin: 0 auto; text-align: center; }
.meta { color: #57606a; font-size: 0.9rem; }
.stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; }
.stat { text-align: center; }
.stat .value { font-size: 1.8rem; font-weight: 600; color: #0969da; }
.stat .label { color: #57606a; font-size: 0.85rem; }
.charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(400px, 1fr)); gap: 1.5rem; }
.bar-item { margin-bottom: 0.6rem; }
.bar-label { display: flex; justify-content: space-between; font-size: 0.85rem; }
.bar-container { background: #eaeef2; border-radius: 4px; height: 18px; }
.bar { background: #2da44e; border-radius: 4px; height: 18px; min-width: 2px; }
table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
th, td { padding: 0.5rem; border-bottom: 1px solid #d0d7de; text-align: left; }
th { cursor: pointer; background: #f6f8fa; user-select: none; }
.badge { display: inline-block; padding: 0.1rem 0.5rem; border-radius: 1rem; font-size: 0.75rem; }
.badge-success { background: #dafbe1; color: #1a7f37; }
.badge-failure { background: #ffebe9; color: #cf222e; }
.badge-in-progress { background: #fff8c5; color: #9a6700; }
.badge-default { background: #ddf4ff; color: #0969da; }
</style>
</head>
<body>
<div class="container">
{{- if .Empty}}
<div class="card empty">
<h1>Runner Usage Report</h1>
<p>Organization: <strong>{{.Meta.Org}}</strong></p>
<p>No runner usage data found for the specified criteria.</p>
<p class="meta">Filters: {{.Filters}}</p>
<p class="meta"><em>Report {{.Meta.ID}} generated on {{.Meta.GeneratedAt.Format "January 02, 2006 at 15:04 UTC"}}</em></p>
</div>
{{- else}}
<div class="card">
<h1>Runner Usage Report</h1>
<p class="meta">Organization <strong>{{.Meta.Org}}</strong> &middot; Filters: {{.Filters}}{{if .Grouped}} &middot; Grouped by {{.GroupKey}}{{end}}</p>
<p class="meta">Report {{.Meta.ID}} generated on {{.Meta.GeneratedAt.Format "January 02, 2006 at 15:04 UTC"}}</p>
<div class="stats">
{{- range .Stats}}
<div class="stat"><div class="value">{{.Value}}</div><div class="label">{{.Label}}</div></div>
{{- end}}
</div>
</div>

<div class="charts">
<div class="card">
<h2>Top Repositories</h2>
{{- range .RepoChart}}
<div class="bar-item">
<div class="bar-label"><span>{{.Name}}</span><span>{{plural .Jobs}}</span></div>
<div class="bar-container"><div class="bar" style="width: {{percent .Percent}}%"></div></div>
</div>
{{- end}}
</div>
<div class="card">
<h2>Top Runner Labels</h2>
{{- range .LabelChart}}
<div class="bar-item">
<div class="bar-label"><span>{{.Name}}</span><span>{{plural .Jobs}}</span></div>
<div class="bar-container"><div class="bar" style="width: {{percent .Percent}}%"></div></div>
</div>
{{- end}}
</div>
</div>

{{- if .Grouped}}
<div class="card">
<h2>Groups by {{.GroupKey}}</h2>
<table class="sortable">
<thead><tr><th>Group</th><th>Total Jobs</th><th>Successful</th><th>Failed</th><th>Other</th><th>Success Rate</th><th>Mean Duration</th><th>Median Duration</th><th>P95 Duration</th><th>Repositories</th></tr></thead>
<tbody>
{{- range .Groups}}
<tr><td><strong>{{.Key}}</strong></td><td>{{.Jobs}}</td><td>{{.Success}}</td><td>{{.Failure}}</td><td>{{.Other}}</td><td><span class="badge {{rateClass .SuccessRate}}">{{rate .SuccessRate}}</span></td><td>{{seconds .MeanDurationSeconds}}</td><td>{{seconds .MedianDurationSeconds}}</td><td>{{seconds .P95DurationSeconds}}</td><td>{{.Repositories}}</td></tr>
{{- end}}
</tbody>
</table>
</div>
{{- end}}

<div class="card">
<h2>Jobs</h2>
<table class="sortable">
<thead><tr><th>Repository</th><th>Workflow</th><th>Branch</th><th>Job Name</th><th>Runner Labels</th><th>Runner Type</th><th>Cost Category</th><th>Status</th><th>Duration</th><th>Run Date</th></tr></thead>
<tbody>
{{- range .Records}}
<tr><td><strong>{{.Repo}}</strong></td><td>{{.WorkflowName}}</td><td>{{.Branch}}</td><td>{{if .HTMLURL}}<a href="{{.HTMLURL}}">{{.JobName}}</a>{{else}}{{.JobName}}{{end}}</td><td><span class="badge badge-default">{{join .Labels ", "}}</span></td><td>{{.RunnerType}}</td><td>{{.CostCategory}}</td><td><span class="badge {{statusClass .EffectiveStatus}}">{{.EffectiveStatus}}</span></td><td>{{duration .DurationSeconds}}</td><td>{{time .StartedAt}}</td></tr>
{{- end}}
</tbody>
</table>
</div>

<div class="card">
<details>
<summary>Step summary</summary>
{{.SummaryHTML}}
</details>
</div>
{{- end}}
</div>
<script>
document.querySelectorAll('table.sortable th').forEach(function (th) {
  th.addEventListener('click', function () {
    var table = th.closest('table');
    var body = table.tBodies[0];
    var rows = Array.prototype.slice.call(body.rows);
    var col = Array.prototype.indexOf.call(th.parentNode.children, th);
    var asc = th.dataset.order !== 'asc';
    th.dataset.order = asc ? 'asc' : 'desc';
    rows.sort(function (a, b) {
      var x = a.cells[col].innerText, y = b.cells[col].innerText;
      var nx = parseFloat(x), ny = parseFloat(y);
      var cmp = (!isNaN(nx) && !isNaN(ny)) ? nx - ny : x.localeCompare(y);
      return asc ? cmp : -cmp;
    });
    rows.forEach(function (r) { body.appendChild(r); });
  });
});
</script>
</body>
</html>
`
