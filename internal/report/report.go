// Package report renders an analysis result as CSV, HTML, markdown summary,
// PDF and Prometheus textfile artifacts.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/runner-usage/internal/common"
	"github.com/ternarybob/runner-usage/internal/models"
)

// Meta describes the run that produced a result
type Meta struct {
	ID          string
	Org         string
	GeneratedAt time.Time
	Criteria    models.FilterCriteria
	Stats       models.FetchStats
}

// NewMeta stamps a new report ID for org
func NewMeta(org string, criteria models.FilterCriteria, stats models.FetchStats, now time.Time) Meta {
	return Meta{
		ID:          uuid.NewString(),
		Org:         org,
		GeneratedAt: now.UTC(),
		Criteria:    criteria,
		Stats:       stats,
	}
}

// Count is one bar of a top-N chart
type Count struct {
	Name string
	Jobs int
}

// TopRepositories counts jobs per repository, most used first
func TopRepositories(records []models.AnalysisRecord, n int) []Count {
	return topCounts(records, n, func(rec *models.AnalysisRecord) []string {
		return []string{rec.Repo}
	})
}

// TopLabels counts jobs per runner label, most used first. A job counts once per distinct label.
func TopLabels(records []models.AnalysisRecord, n int) []Count {
	return topCounts(records, n, func(rec *models.AnalysisRecord) []string {
		seen := make(map[string]bool, len(rec.Labels))
		var labels []string
		for _, l := range rec.Labels {
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			labels = append(labels, l)
		}
		return labels
	})
}

func topCounts(records []models.AnalysisRecord, n int, keys func(*models.AnalysisRecord) []string) []Count {
	index := make(map[string]int)
	var counts []Count
	for i := range records {
		for _, k := range keys(&records[i]) {
			if k == "" {
				k = models.NoneGroupValue
			}
			pos, ok := index[k]
			if !ok {
				pos = len(counts)
				index[k] = pos
				counts = append(counts, Count{Name: k})
			}
			counts[pos].Jobs++
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Jobs > counts[j].Jobs
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// RecentRecords returns up to n records ordered by start time, newest first.
// Records without a start time sort last.
func RecentRecords(records []models.AnalysisRecord, n int) []models.AnalysisRecord {
	sorted := make([]models.AnalysisRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].StartedAt, sorted[j].StartedAt
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// FormatDuration renders seconds as MM:SS, "unknown" when the duration is not known
func FormatDuration(seconds *float64) string {
	if seconds == nil {
		return "unknown"
	}
	return formatSeconds(*seconds)
}

func formatSeconds(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func uniqueWorkflows(records []models.AnalysisRecord) int {
	seen := make(map[string]bool)
	for _, r := range records {
		key := r.Repo + "/" + r.WorkflowName
		if r.WorkflowID != 0 {
			key = fmt.Sprintf("%s/%d", r.Repo, r.WorkflowID)
		}
		seen[key] = true
	}
	return len(seen)
}

// criteriaText renders the active filters, "none" when there are none
func criteriaText(c models.FilterCriteria) string {
	c = c.Normalized()
	var parts []string
	if c.RunnerLabel != "" {
		parts = append(parts, "label="+c.RunnerLabel)
	}
	if c.Status != "" {
		parts = append(parts, "status="+c.Status)
	}
	if c.RepoPattern != "" {
		parts = append(parts, "repo="+c.RepoPattern)
	}
	if c.DaysBack > 0 {
		parts = append(parts, fmt.Sprintf("days_back=%d", c.DaysBack))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithStepSummaryPath overrides the $GITHUB_STEP_SUMMARY file
func WithStepSummaryPath(path string) WriterOption {
	return func(w *Writer) {
		w.stepSummaryPath = path
	}
}

// Writer writes the configured report formats into the output directory
type Writer struct {
	cfg             common.OutputConfig
	logger          arbor.ILogger
	stepSummaryPath string
}

// NewWriter creates a report writer
func NewWriter(cfg common.OutputConfig, logger arbor.ILogger, opts ...WriterOption) *Writer {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	w := &Writer{
		cfg:             cfg,
		logger:          logger,
		stepSummaryPath: os.Getenv("GITHUB_STEP_SUMMARY"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteAll writes every enabled format and returns the paths written.
// It stops at the first failing format.
func (w *Writer) WriteAll(result *models.AnalysisResult, meta Meta) ([]string, error) {
	if err := os.MkdirAll(w.cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", w.cfg.Dir, err)
	}

	opts := Options{TopN: w.cfg.TopN, RecentJobs: w.cfg.RecentJobs}
	summary := Summary(result, meta, opts)

	var written []string
	for _, format := range common.AllFormats {
		if !w.cfg.Enabled(format) {
			continue
		}

		var (
			path string
			err  error
		)
		switch format {
		case common.FormatCSV:
			path = w.path(w.cfg.CSVFile, "runner_usage_report.csv")
			err = writeFile(path, func(f *os.File) error { return WriteCSV(f, result) })
		case common.FormatHTML:
			path = w.path(w.cfg.HTMLFile, "runner_usage_report.html")
			err = writeFile(path, func(f *os.File) error { return WriteHTML(f, result, meta, summary, opts) })
		case common.FormatSummary:
			path = w.path(w.cfg.SummaryFile, "runner_usage_summary.md")
			err = os.WriteFile(path, []byte(summary), 0644)
		case common.FormatPDF:
			path = w.path(w.cfg.PDFFile, "runner_usage_report.pdf")
			err = writeFile(path, func(f *os.File) error { return WritePDF(f, summary, meta) })
		case common.FormatMetrics:
			path = w.path(w.cfg.MetricsFile, "runner_usage.prom")
			err = WriteMetrics(path, result, meta)
		}
		if err != nil {
			w.logger.Error().Err(err).Str("format", format).Str("path", path).Msg("Failed to write report")
			return written, fmt.Errorf("failed to write %s report: %w", format, err)
		}

		w.logger.Info().Str("format", format).Str("path", path).Msg("Report written")
		written = append(written, path)
	}

	if w.cfg.StepSummary {
		w.writeStepSummary(summary)
	}

	return written, nil
}

// writeStepSummary appends the summary to the GitHub Actions job summary.
// Failures are logged only; the summary is a convenience output.
func (w *Writer) writeStepSummary(summary string) {
	if w.stepSummaryPath == "" {
		w.logger.Debug().Msg("GitHub Actions summary not available (not running in GitHub Actions)")
		return
	}

	f, err := os.OpenFile(w.stepSummaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.stepSummaryPath).Msg("Failed to open GitHub Actions summary")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(summary); err != nil {
		w.logger.Error().Err(err).Str("path", w.stepSummaryPath).Msg("Failed to write GitHub Actions summary")
		return
	}
	w.logger.Info().Msg("GitHub Actions summary updated")
}

func (w *Writer) path(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	return filepath.Join(w.cfg.Dir, name)
}

func writeFile(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
