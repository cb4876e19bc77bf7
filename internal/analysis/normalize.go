package analysis

import (
	"fmt"

	"github.com/ternarybob/runner-usage/internal/classify"
	"github.com/ternarybob/runner-usage/internal/models"
)

// outcome buckets
const (
	outcomeOther = iota
	outcomeSuccess
	outcomeFailure
)

// neutralConclusions have a conclusion but are neither a success nor a failure
var neutralConclusions = map[string]bool{
	models.StatusSkipped: true,
	models.StatusNeutral: true,
	"stale":              true,
}

// Normalize merges a job with its run and repository metadata into one AnalysisRecord.
// run and repo may be nil. It fails with ErrMalformedRecord when the job lacks its
// job or run ID; callers skip such records.
func Normalize(job models.RawJob, run *models.WorkflowRun, repo *models.Repository) (models.AnalysisRecord, error) {
	if job.ID == 0 || job.RunID == 0 {
		return models.AnalysisRecord{}, fmt.Errorf("%w: repo=%q job=%q job_id=%d run_id=%d",
			models.ErrMalformedRecord, job.RepoName, job.Name, job.ID, job.RunID)
	}

	rec := models.AnalysisRecord{
		RunID:        job.RunID,
		JobID:        job.ID,
		Repo:         job.RepoName,
		WorkflowName: job.WorkflowName,
		Branch:       job.Branch,
		JobName:      job.Name,
		Status:       job.Status,
		Conclusion:   job.Conclusion,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		Labels:       append([]string(nil), job.Labels...),
		RunnerName:   job.RunnerName,
		RunnerGroup:  job.RunnerGroup,
		HTMLURL:      job.HTMLURL,
	}

	if run != nil {
		rec.Repo = firstNonEmpty(run.RepoName, rec.Repo)
		rec.WorkflowName = firstNonEmpty(run.WorkflowName, rec.WorkflowName)
		rec.WorkflowID = run.WorkflowID
		rec.Branch = firstNonEmpty(run.Branch, rec.Branch)
		rec.Event = run.Event
	}

	if repo != nil {
		rec.RepoLanguage = repo.Language
		rec.RepoSize = repo.Size
		rec.RepoVisibility = repo.Visibility
	}

	rec.RunnerType, rec.CostCategory = classify.Classify(rec.Labels)
	rec.DurationSeconds = durationSeconds(job)
	rec.Success = success(job.Conclusion)

	return rec, nil
}

// durationSeconds is completed - started, or nil when a timestamp is missing or the
// pair is inverted
func durationSeconds(job models.RawJob) *float64 {
	if job.StartedAt == nil || job.CompletedAt == nil || job.StartedAt.IsZero() || job.CompletedAt.IsZero() {
		return nil
	}
	d := job.CompletedAt.Sub(*job.StartedAt)
	if d < 0 {
		return nil
	}
	secs := d.Seconds()
	return &secs
}

// success is true for "success", false for any other terminal verdict, nil when
// there is no verdict
func success(conclusion string) *bool {
	if conclusion == "" || neutralConclusions[conclusion] {
		return nil
	}
	ok := conclusion == models.StatusSuccess
	return &ok
}

func outcome(rec *models.AnalysisRecord) int {
	switch {
	case rec.Success == nil:
		return outcomeOther
	case *rec.Success:
		return outcomeSuccess
	default:
		return outcomeFailure
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
