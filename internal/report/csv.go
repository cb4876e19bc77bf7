package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/runner-usage/internal/models"
)

// CSVHeader is the column order of the CSV export
var CSVHeader = []string{
	"repo", "workflow", "branch", "job_name", "status", "conclusion",
	"runner_type", "cost_category", "duration_seconds", "labels",
	"repo_language", "repo_size", "repo_visibility",
	"run_id", "job_id", "started_at", "completed_at", "html_url",
}

// WriteCSV writes one row per record. Labels are joined with ";" and an
// unknown duration is an empty cell.
func WriteCSV(w io.Writer, result *models.AnalysisResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for i := range result.Records {
		rec := &result.Records[i]

		duration := ""
		if rec.DurationSeconds != nil {
			duration = strconv.FormatFloat(*rec.DurationSeconds, 'f', -1, 64)
		}

		row := []string{
			rec.Repo,
			rec.WorkflowName,
			rec.Branch,
			rec.JobName,
			rec.Status,
			rec.Conclusion,
			string(rec.RunnerType),
			string(rec.CostCategory),
			duration,
			strings.Join(rec.Labels, ";"),
			rec.RepoLanguage,
			strconv.Itoa(rec.RepoSize),
			rec.RepoVisibility,
			strconv.FormatInt(rec.RunID, 10),
			strconv.FormatInt(rec.JobID, 10),
			csvTime(rec.StartedAt),
			csvTime(rec.CompletedAt),
			rec.HTMLURL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
