package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RunnerType is the execution environment inferred from a job's labels
type RunnerType string

const (
	RunnerTypeGitHubHosted RunnerType = "github_hosted"
	RunnerTypeSelfHosted   RunnerType = "self_hosted"
	RunnerTypeUbuntu       RunnerType = "ubuntu"
	RunnerTypeWindows      RunnerType = "windows"
	RunnerTypeMacOS        RunnerType = "macos"
	RunnerTypeUnknown      RunnerType = "unknown"
)

// CostCategory is the likely billing bucket of a runner
type CostCategory string

const (
	CostCategoryStandard         CostCategory = "standard"
	CostCategoryLargeInstance    CostCategory = "large_instance"
	CostCategorySelfHostedCustom CostCategory = "self_hosted_custom"
)

// GroupKey selects the dimension used to bucket records
type GroupKey string

const (
	GroupKeyNone         GroupKey = "none"
	GroupKeyRepo         GroupKey = "repo"
	GroupKeyLabel        GroupKey = "label"
	GroupKeyStatus       GroupKey = "status"
	GroupKeyWorkflow     GroupKey = "workflow"
	GroupKeyBranch       GroupKey = "branch"
	GroupKeyRunnerType   GroupKey = "runner_type"
	GroupKeyCostCategory GroupKey = "cost_category"
)

// GroupKeys lists every supported grouping dimension
var GroupKeys = []GroupKey{
	GroupKeyNone,
	GroupKeyRepo,
	GroupKeyLabel,
	GroupKeyStatus,
	GroupKeyWorkflow,
	GroupKeyBranch,
	GroupKeyRunnerType,
	GroupKeyCostCategory,
}

// NoneGroupValue is the group used for records with an empty key value
const NoneGroupValue = "(none)"

// ParseGroupKey parses a group key name (case-insensitive). Empty input means GroupKeyNone.
func ParseGroupKey(s string) (GroupKey, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return GroupKeyNone, nil
	}
	for _, k := range GroupKeys {
		if string(k) == v {
			return k, nil
		}
	}
	names := make([]string, len(GroupKeys))
	for i, k := range GroupKeys {
		names[i] = string(k)
	}
	return GroupKeyNone, &InvalidFilterConfigError{
		Criterion: "group_by",
		Value:     s,
		Reason:    fmt.Sprintf("must be one of %s", strings.Join(names, ", ")),
	}
}

// AnalysisRecord is a normalized job: the raw job merged with its run and
// repository metadata, plus the derived classification fields.
type AnalysisRecord struct {
	RunID        int64      `json:"run_id"`
	JobID        int64      `json:"job_id"`
	Repo         string     `json:"repo"`
	WorkflowName string     `json:"workflow_name"`
	WorkflowID   int64      `json:"workflow_id,omitempty"`
	Branch       string     `json:"branch"`
	Event        string     `json:"event"`
	JobName      string     `json:"job_name"`
	Status       string     `json:"status"`
	Conclusion   string     `json:"conclusion"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Labels       []string   `json:"labels"`
	RunnerName   string     `json:"runner_name,omitempty"`
	RunnerGroup  string     `json:"runner_group,omitempty"`
	HTMLURL      string     `json:"html_url,omitempty"`

	RepoLanguage   string `json:"repo_language"`
	RepoSize       int    `json:"repo_size"`
	RepoVisibility string `json:"repo_visibility"`

	RunnerType      RunnerType   `json:"runner_type"`
	CostCategory    CostCategory `json:"cost_category"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty"` // nil when either timestamp is missing
	Success         *bool        `json:"success,omitempty"`          // nil when the job has no verdict yet
}

// EffectiveStatus is the conclusion when the job has one, otherwise the raw status
func (r AnalysisRecord) EffectiveStatus() string {
	if r.Conclusion != "" {
		return r.Conclusion
	}
	return r.Status
}

// GroupStats holds the counters and derived metrics of one group (or of the whole result)
type GroupStats struct {
	Key     string `json:"key"`
	Jobs    int    `json:"jobs"`
	Success int    `json:"success"`
	Failure int    `json:"failure"`
	Other   int    `json:"other"` // in progress, skipped, neutral

	DurationSamples       int     `json:"duration_samples"`
	MeanDurationSeconds   float64 `json:"mean_duration_seconds"`
	MedianDurationSeconds float64 `json:"median_duration_seconds"`
	P95DurationSeconds    float64 `json:"p95_duration_seconds"`
	TotalDurationSeconds  float64 `json:"total_duration_seconds"`

	SuccessRate      float64 `json:"success_rate"` // success / (success + failure), 0 when nothing finished
	Repositories     int     `json:"repositories"`
	SampleRepository string  `json:"sample_repository"`
}

// Diagnostics reports what happened to the input while building a result
type Diagnostics struct {
	InputJobs        int `json:"input_jobs"`
	SkippedMalformed int `json:"skipped_malformed"`
	Filtered         int `json:"filtered"` // normalized records removed by the filter
}

// AnalysisResult is the output of the pipeline and the input of every report.
// It is not modified after construction.
type AnalysisResult struct {
	GroupKey    GroupKey         `json:"group_key"`
	Overall     GroupStats       `json:"overall"`
	Groups      []GroupStats     `json:"groups"`
	Records     []AnalysisRecord `json:"records"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// IsGrouped reports whether the result carries per-group statistics
func (r *AnalysisResult) IsGrouped() bool {
	return r.GroupKey != GroupKeyNone && r.GroupKey != ""
}

// TopGroups returns up to n groups ordered by job count, ties kept in first-seen order
func (r *AnalysisResult) TopGroups(n int) []GroupStats {
	return TopGroups(r.Groups, n)
}

// TopGroups returns up to n entries of groups ordered by job count (stable)
func TopGroups(groups []GroupStats, n int) []GroupStats {
	sorted := make([]GroupStats, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Jobs > sorted[j].Jobs
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
