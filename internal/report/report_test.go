package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/runner-usage/internal/analysis"
	"github.com/ternarybob/runner-usage/internal/common"
	"github.com/ternarybob/runner-usage/internal/models"
)

var testNow = time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)

func job(id int64, repo, name, conclusion string, labels []string, startOffset, seconds time.Duration) models.RawJob {
	started := testNow.Add(-startOffset)
	j := models.RawJob{
		ID:         id,
		RunID:      10,
		RepoName:   repo,
		Name:       name,
		Status:     models.StatusCompleted,
		Conclusion: conclusion,
		StartedAt:  &started,
		Labels:     labels,
	}
	if seconds > 0 {
		completed := started.Add(seconds)
		j.CompletedAt = &completed
	} else {
		j.Status = models.StatusInProgress
		j.Conclusion = ""
	}
	return j
}

func fixtureResult(t *testing.T, key models.GroupKey) *models.AnalysisResult {
	t.Helper()

	batch := &models.Batch{
		Org: "acme",
		Jobs: []models.RawJob{
			job(1, "api", "build", "success", []string{"ubuntu-latest"}, 3*time.Hour, 120*time.Second),
			job(2, "api", "gpu|test", "failure", []string{"self-hosted", "gpu"}, 2*time.Hour, 300*time.Second),
			job(3, "web", "lint", "success", []string{"ubuntu-latest"}, time.Hour, 45*time.Second),
			job(4, "web", "deploy", "", []string{"windows-latest"}, 10*time.Minute, 0),
		},
		Runs: map[int64]*models.WorkflowRun{
			10: {ID: 10, WorkflowName: "CI", WorkflowID: 161335, Branch: "main"},
		},
		Repositories: models.RepositoryIndex{
			"api": {Name: "api", Language: "Go", Size: 2048, Visibility: "private"},
		},
	}

	p, err := analysis.NewPipeline(models.FilterCriteria{}, key, arbor.NewLogger())
	require.NoError(t, err)
	return p.Run(batch)
}

func fixtureMeta() Meta {
	meta := NewMeta("acme", models.FilterCriteria{RunnerLabel: "latest", DaysBack: 7}, models.FetchStats{APICalls: 12}, testNow)
	meta.ID = "report-1"
	return meta
}

func TestNewMeta(t *testing.T) {
	a := NewMeta("acme", models.FilterCriteria{}, models.FetchStats{}, testNow)
	b := NewMeta("acme", models.FilterCriteria{}, models.FetchStats{}, testNow)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.GeneratedAt.Location())
}

func TestTopCounts(t *testing.T) {
	result := fixtureResult(t, models.GroupKeyNone)

	repos := TopRepositories(result.Records, 10)
	assert.Equal(t, []Count{{Name: "api", Jobs: 2}, {Name: "web", Jobs: 2}}, repos)

	labels := TopLabels(result.Records, 2)
	require.Len(t, labels, 2)
	assert.Equal(t, Count{Name: "ubuntu-latest", Jobs: 2}, labels[0])
	assert.Equal(t, Count{Name: "self-hosted", Jobs: 1}, labels[1])
}

func TestUniqueWorkflows(t *testing.T) {
	tests := []struct {
		name    string
		records []models.AnalysisRecord
		want    int
	}{
		{
			name: "renamed workflow with same id",
			records: []models.AnalysisRecord{
				{Repo: "api", WorkflowName: "CI", WorkflowID: 1},
				{Repo: "api", WorkflowName: "Build", WorkflowID: 1},
			},
			want: 1,
		},
		{
			name: "same name different ids",
			records: []models.AnalysisRecord{
				{Repo: "api", WorkflowName: "CI", WorkflowID: 1},
				{Repo: "api", WorkflowName: "CI", WorkflowID: 2},
			},
			want: 2,
		},
		{
			name: "same id in different repositories",
			records: []models.AnalysisRecord{
				{Repo: "api", WorkflowID: 1},
				{Repo: "web", WorkflowID: 1},
			},
			want: 2,
		},
		{
			name: "falls back to name without id",
			records: []models.AnalysisRecord{
				{Repo: "api", WorkflowName: "CI"},
				{Repo: "api", WorkflowName: "CI"},
				{Repo: "api", WorkflowName: "Lint"},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uniqueWorkflows(tt.records))
		})
	}
}

func TestBars_TruncatesByRune(t *testing.T) {
	name := strings.Repeat("é", 40)
	result := bars([]Count{{Name: name, Jobs: 4}, {Name: "api", Jobs: 2}})

	require.Len(t, result, 2)
	assert.True(t, utf8.ValidString(result[0].Name))
	assert.Equal(t, strings.Repeat("é", 27)+"...", result[0].Name)
	assert.Equal(t, 100.0, result[0].Percent)
	assert.Equal(t, "api", result[1].Name)
	assert.Equal(t, 50.0, result[1].Percent)
}

func TestRecentRecords(t *testing.T) {
	records := fixtureResult(t, models.GroupKeyNone).Records
	records = append(records, models.AnalysisRecord{JobID: 99, Repo: "queued"})

	recent := RecentRecords(records, 3)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(4), recent[0].JobID)
	assert.Equal(t, int64(3), recent[1].JobID)
	assert.Equal(t, int64(2), recent[2].JobID)

	all := RecentRecords(records, 10)
	assert.Equal(t, int64(99), all[len(all)-1].JobID)
}

func TestFormatDuration(t *testing.T) {
	seconds := 125.0
	long := 3725.0
	assert.Equal(t, "unknown", FormatDuration(nil))
	assert.Equal(t, "02:05", FormatDuration(&seconds))
	assert.Equal(t, "62:05", FormatDuration(&long))
}

func TestWriteCSV(t *testing.T) {
	result := fixtureResult(t, models.GroupKeyNone)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, result))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, CSVHeader, rows[0])

	first := rows[1]
	assert.Equal(t, "api", first[0])
	assert.Equal(t, "CI", first[1])
	assert.Equal(t, "ubuntu", first[6])
	assert.Equal(t, "standard", first[7])
	assert.Equal(t, "120", first[8])
	assert.Equal(t, "Go", first[10])
	assert.Equal(t, "2048", first[11])
	assert.Equal(t, "2025-11-20T09:00:00Z", first[15])

	gpu := rows[2]
	assert.Equal(t, "self-hosted;gpu", gpu[9])
	assert.Equal(t, "self_hosted", gpu[6])

	inProgress := rows[4]
	assert.Equal(t, "", inProgress[8])
	assert.Equal(t, "", inProgress[16])
}

func TestSummary(t *testing.T) {
	result := fixtureResult(t, models.GroupKeyRepo)
	summary := Summary(result, fixtureMeta(), Options{TopN: 5, RecentJobs: 2})

	assert.Contains(t, summary, "# Runner Usage Report")
	assert.Contains(t, summary, "- **Organization**: acme")
	assert.Contains(t, summary, "- **Total Jobs**: 4")
	assert.Contains(t, summary, "- **Successful Jobs**: 2")
	assert.Contains(t, summary, "- **Success Rate**: 66.7%")
	assert.Contains(t, summary, "- **Filters**: label=latest, days_back=7")
	assert.Contains(t, summary, "## Top Groups by repo")
	assert.Contains(t, summary, "| api | 2 | 1 | 1 | 50.0% | 03:30 |")
	assert.Contains(t, summary, "- **ubuntu-latest**: 2 jobs")
	assert.Contains(t, summary, "- **gpu**: 1 job")
	assert.Contains(t, summary, "*Report report-1 generated on 2025-11-20 12:00:00 UTC*")

	// only the two most recent jobs
	assert.Contains(t, summary, "| web | CI | deploy |")
	assert.NotContains(t, summary, "| api | CI | build |")

	all := Summary(result, fixtureMeta(), Options{RecentJobs: 10})
	assert.Contains(t, all, "| api | CI | gpu\\|test |")
}

func TestSummary_Empty(t *testing.T) {
	empty := analysis.Aggregate(nil, models.GroupKeyNone)
	summary := Summary(empty, fixtureMeta(), Options{})

	assert.Contains(t, summary, "**No runner usage data found.**")
	assert.NotContains(t, summary, "## Summary Statistics")
}

func TestWriteHTML(t *testing.T) {
	result := fixtureResult(t, models.GroupKeyRunnerType)
	meta := fixtureMeta()

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, result, meta, Summary(result, meta, Options{}), Options{TopN: 10}))
	html := buf.String()

	assert.Contains(t, html, "<title>Runner Usage Report - acme</title>")
	assert.Contains(t, html, "Groups by runner_type")
	assert.Contains(t, html, `<td><strong>self_hosted</strong></td>`)
	assert.Contains(t, html, `style="width: 100.0%"`)
	assert.Contains(t, html, "gpu|test")
	assert.Contains(t, html, `<span class="badge badge-failure">failure</span>`)
	assert.Contains(t, html, `<span class="badge badge-in-progress">in_progress</span>`)
	// goldmark-rendered summary
	assert.Contains(t, html, "<h2>Summary Statistics</h2>")
	assert.Contains(t, html, "<table>")
}

func TestWriteHTML_Empty(t *testing.T) {
	empty := analysis.Aggregate(nil, models.GroupKeyNone)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, empty, fixtureMeta(), "", Options{}))

	assert.Contains(t, buf.String(), "No runner usage data found for the specified criteria.")
	assert.NotContains(t, buf.String(), "<h2>Jobs</h2>")
}

func TestWriteHTML_EscapesValues(t *testing.T) {
	result := analysis.Aggregate([]models.AnalysisRecord{
		{JobID: 1, Repo: "<script>alert(1)</script>", Status: models.StatusQueued},
	}, models.GroupKeyNone)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, result, fixtureMeta(), Summary(result, fixtureMeta(), Options{}), Options{}))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
}

func TestWritePDF(t *testing.T) {
	tests := []struct {
		name string
		key  models.GroupKey
	}{
		{name: "Ungrouped", key: models.GroupKeyNone},
		{name: "Grouped by label", key: models.GroupKeyLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fixtureResult(t, tt.key)
			meta := fixtureMeta()

			var buf bytes.Buffer
			require.NoError(t, WritePDF(&buf, Summary(result, meta, Options{RecentJobs: 10}), meta))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
		})
	}
}

func TestNewMetrics(t *testing.T) {
	result := fixtureResult(t, models.GroupKeyRepo)

	m, err := NewMetrics(result, fixtureMeta())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobs.WithLabelValues("all", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("api", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("web", "other")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.successRatio.WithLabelValues("api")))
	assert.Equal(t, 210.0, testutil.ToFloat64(m.durationMean.WithLabelValues("api")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.apiCalls))
}

func TestWriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner_usage.prom")
	require.NoError(t, WriteMetrics(path, fixtureResult(t, models.GroupKeyRepo), fixtureMeta()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# TYPE runner_usage_jobs gauge")
	assert.Contains(t, text, `runner_usage_jobs{group="api",group_key="repo",org="acme",outcome="success"} 1`)
	assert.Contains(t, text, `runner_usage_report_timestamp_seconds{org="acme"}`)
}

func TestWriter_WriteAll(t *testing.T) {
	dir := t.TempDir()
	stepSummary := filepath.Join(t.TempDir(), "step_summary.md")

	cfg := common.NewDefaultConfig().Output
	cfg.Dir = filepath.Join(dir, "out")
	cfg.Formats = common.AllFormats

	w := NewWriter(cfg, arbor.NewLogger(), WithStepSummaryPath(stepSummary))
	written, err := w.WriteAll(fixtureResult(t, models.GroupKeyLabel), fixtureMeta())
	require.NoError(t, err)
	require.Len(t, written, len(common.AllFormats))

	for _, path := range written {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Greater(t, info.Size(), int64(0), path)
	}
	assert.Equal(t, filepath.Join(cfg.Dir, "runner_usage_report.csv"), written[0])

	step, err := os.ReadFile(stepSummary)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(step), "# Runner Usage Report"))
}

func TestWriter_OnlySelectedFormats(t *testing.T) {
	cfg := common.NewDefaultConfig().Output
	cfg.Dir = t.TempDir()
	cfg.Formats = []string{"summary"}
	cfg.StepSummary = false

	w := NewWriter(cfg, arbor.NewLogger(), WithStepSummaryPath(""))
	written, err := w.WriteAll(fixtureResult(t, models.GroupKeyNone), fixtureMeta())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(cfg.Dir, "runner_usage_summary.md")}, written)
	assert.NoFileExists(t, filepath.Join(cfg.Dir, "runner_usage_report.csv"))
}
