package models

import (
	"time"
)

// RawJob is one workflow job as returned by the GitHub Actions API,
// flattened to the fields the analysis needs.
type RawJob struct {
	ID           int64      `json:"id"`
	RunID        int64      `json:"run_id"`
	RepoName     string     `json:"repo_name"`
	WorkflowName string     `json:"workflow_name"`
	Branch       string     `json:"branch"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`     // queued, in_progress, completed, waiting
	Conclusion   string     `json:"conclusion"` // success, failure, cancelled, skipped, ... (empty while running)
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Labels       []string   `json:"labels"` // runs-on labels, in declaration order
	RunnerName   string     `json:"runner_name,omitempty"`
	RunnerGroup  string     `json:"runner_group,omitempty"`
	HTMLURL      string     `json:"html_url,omitempty"`
}

// WorkflowRun is the parent run of a job
type WorkflowRun struct {
	ID           int64  `json:"id"`
	RepoName     string `json:"repo_name"`
	WorkflowName string `json:"workflow_name"`
	WorkflowID   int64  `json:"workflow_id"` // 0 when the API did not report it
	Branch       string `json:"branch"`
	Event        string `json:"event"`
	RunAttempt   int    `json:"run_attempt"`
	HTMLURL      string `json:"html_url,omitempty"`
}

// Repository holds the repository metadata attached to every job of that repository
type Repository struct {
	Name          string `json:"name"`
	Language      string `json:"language"`
	Size          int    `json:"size"`       // KB, as reported by GitHub
	Visibility    string `json:"visibility"` // public, private, internal
	DefaultBranch string `json:"default_branch"`
}

// RepositoryIndex is a read-only lookup of repository metadata keyed by repository name.
// It is built once by the fetcher and shared by reference.
type RepositoryIndex map[string]*Repository

// Lookup returns the metadata for name, or nil if the repository is unknown
func (idx RepositoryIndex) Lookup(name string) *Repository {
	if idx == nil {
		return nil
	}
	return idx[name]
}

// FetchStats describes the API traffic needed to build a Batch
type FetchStats struct {
	Repositories    int           `json:"repositories"`
	RepositoryFails int           `json:"repository_fails"`
	Runs            int           `json:"runs"`
	Jobs            int           `json:"jobs"`
	APICalls        int           `json:"api_calls"`
	RateRemaining   int           `json:"rate_remaining"`
	Duration        time.Duration `json:"duration"`
}

// Batch is the complete, already-fetched input for a single analysis
type Batch struct {
	Org          string                 `json:"org"`
	Jobs         []RawJob               `json:"jobs"`
	Runs         map[int64]*WorkflowRun `json:"runs"`
	Repositories RepositoryIndex        `json:"repositories"`
	Stats        FetchStats             `json:"stats"`
}

// Run returns the parent run of job, or nil when the run was not fetched
func (b *Batch) Run(job RawJob) *WorkflowRun {
	if b == nil || b.Runs == nil {
		return nil
	}
	return b.Runs[job.RunID]
}
