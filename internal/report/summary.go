package report

import (
	"fmt"
	"strings"

	"github.com/ternarybob/runner-usage/internal/models"
)

// Options tune the size of the summary sections
type Options struct {
	TopN       int // entries in the top repository and label lists
	RecentJobs int // rows in the recent jobs table
}

func (o Options) topN() int {
	if o.TopN <= 0 {
		return 5
	}
	return o.TopN
}

// Summary renders the result as GitHub-flavored markdown
func Summary(result *models.AnalysisResult, meta Meta, opts Options) string {
	var sb strings.Builder

	sb.WriteString("# Runner Usage Report\n\n")

	if result == nil || result.Overall.Jobs == 0 {
		sb.WriteString("**No runner usage data found.**\n\n")
		fmt.Fprintf(&sb, "- **Organization**: %s\n", mdEscape(meta.Org))
		fmt.Fprintf(&sb, "- **Filters**: %s\n", mdEscape(criteriaText(meta.Criteria)))
		writeFooter(&sb, meta)
		return sb.String()
	}

	overall := result.Overall

	sb.WriteString("## Summary Statistics\n")
	fmt.Fprintf(&sb, "- **Organization**: %s\n", mdEscape(meta.Org))
	fmt.Fprintf(&sb, "- **Total Jobs**: %d\n", overall.Jobs)
	fmt.Fprintf(&sb, "- **Repositories Analyzed**: %d\n", overall.Repositories)
	fmt.Fprintf(&sb, "- **Unique Workflows**: %d\n", uniqueWorkflows(result.Records))
	fmt.Fprintf(&sb, "- **Successful Jobs**: %d\n", overall.Success)
	fmt.Fprintf(&sb, "- **Failed Jobs**: %d\n", overall.Failure)
	fmt.Fprintf(&sb, "- **Success Rate**: %s\n", formatRate(overall.SuccessRate))
	fmt.Fprintf(&sb, "- **Mean Duration**: %s\n", formatSeconds(overall.MeanDurationSeconds))
	fmt.Fprintf(&sb, "- **P95 Duration**: %s\n", formatSeconds(overall.P95DurationSeconds))
	fmt.Fprintf(&sb, "- **Filters**: %s\n", mdEscape(criteriaText(meta.Criteria)))
	if result.Diagnostics.SkippedMalformed > 0 {
		fmt.Fprintf(&sb, "- **Skipped Malformed Jobs**: %d\n", result.Diagnostics.SkippedMalformed)
	}

	if result.IsGrouped() {
		fmt.Fprintf(&sb, "\n## Top Groups by %s\n", result.GroupKey)
		sb.WriteString("| Group | Jobs | Successful | Failed | Success Rate | Mean Duration | P95 Duration |\n")
		sb.WriteString("|-------|------|------------|--------|--------------|---------------|--------------|\n")
		for _, g := range result.TopGroups(opts.topN()) {
			fmt.Fprintf(&sb, "| %s | %d | %d | %d | %s | %s | %s |\n",
				mdEscape(g.Key), g.Jobs, g.Success, g.Failure,
				formatRate(g.SuccessRate),
				formatSeconds(g.MeanDurationSeconds),
				formatSeconds(g.P95DurationSeconds))
		}
	}

	sb.WriteString("\n## Top Repositories by Runner Usage\n")
	for _, c := range TopRepositories(result.Records, opts.topN()) {
		fmt.Fprintf(&sb, "- **%s**: %s\n", mdEscape(c.Name), jobsText(c.Jobs))
	}

	sb.WriteString("\n## Top Runner Labels\n")
	for _, c := range TopLabels(result.Records, opts.topN()) {
		fmt.Fprintf(&sb, "- **%s**: %s\n", mdEscape(c.Name), jobsText(c.Jobs))
	}

	if recent := RecentRecords(result.Records, opts.RecentJobs); len(recent) > 0 {
		sb.WriteString("\n## Recent Jobs\n")
		sb.WriteString("| Repository | Workflow | Job Name | Runner Labels | Runner Type | Status | Duration | Date |\n")
		sb.WriteString("|------------|----------|----------|---------------|-------------|--------|----------|------|\n")
		for _, rec := range recent {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
				mdEscape(rec.Repo),
				mdEscape(rec.WorkflowName),
				mdEscape(rec.JobName),
				mdEscape(strings.Join(rec.Labels, ", ")),
				rec.RunnerType,
				mdEscape(rec.EffectiveStatus()),
				FormatDuration(rec.DurationSeconds),
				formatTime(rec.StartedAt))
		}
	}

	writeFooter(&sb, meta)
	return sb.String()
}

func writeFooter(sb *strings.Builder, meta Meta) {
	fmt.Fprintf(sb, "\n*Report %s generated on %s*\n", meta.ID, meta.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
}

func jobsText(n int) string {
	if n == 1 {
		return "1 job"
	}
	return fmt.Sprintf("%d jobs", n)
}

var mdReplacer = strings.NewReplacer("|", "\\|", "\n", " ", "\r", "")

// mdEscape keeps a value inside its table cell or list item
func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
