package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRecord marks a raw job that cannot be normalized (missing job or run ID).
// It is recoverable: the record is skipped and counted.
var ErrMalformedRecord = errors.New("malformed job record")

// InvalidFilterConfigError reports a filter or grouping value that cannot be used.
// It is fatal for the whole analysis and is raised before any record is processed.
type InvalidFilterConfigError struct {
	Criterion string
	Value     string
	Reason    string
}

func (e *InvalidFilterConfigError) Error() string {
	return fmt.Sprintf("invalid filter config: %s=%q %s", e.Criterion, e.Value, e.Reason)
}

// Status filter values. The first group is matched against the raw job
// status, the second against the conclusion.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
	StatusQueued     = "queued"
	StatusWaiting    = "waiting"

	StatusSuccess        = "success"
	StatusFailure        = "failure"
	StatusCancelled      = "cancelled"
	StatusSkipped        = "skipped"
	StatusTimedOut       = "timed_out"
	StatusNeutral        = "neutral"
	StatusActionRequired = "action_required"
)

var rawStatusFilters = map[string]bool{
	StatusCompleted:  true,
	StatusInProgress: true,
	StatusQueued:     true,
	StatusWaiting:    true,
}

var conclusionFilters = map[string]bool{
	StatusSuccess:        true,
	StatusFailure:        true,
	StatusCancelled:      true,
	StatusSkipped:        true,
	StatusTimedOut:       true,
	StatusNeutral:        true,
	StatusActionRequired: true,
}

// IsRawStatusFilter reports whether a status filter value is compared with the raw job status
func IsRawStatusFilter(status string) bool {
	return rawStatusFilters[status]
}

// IsConclusionFilter reports whether a status filter value is compared with the job conclusion
func IsConclusionFilter(status string) bool {
	return conclusionFilters[status]
}

// StatusFilterValues returns the accepted status filter values
func StatusFilterValues() []string {
	return []string{
		StatusCompleted, StatusInProgress, StatusQueued, StatusWaiting,
		StatusSuccess, StatusFailure, StatusCancelled, StatusSkipped,
		StatusTimedOut, StatusNeutral, StatusActionRequired,
	}
}

// FilterCriteria is the user-selected predicate set. Zero values mean "not set".
type FilterCriteria struct {
	RunnerLabel string `toml:"runner_label" json:"runner_label,omitempty" validate:"max=256"`
	Status      string `toml:"status" json:"status,omitempty" validate:"omitempty,status_filter"`
	RepoPattern string `toml:"repo_pattern" json:"repo_pattern,omitempty" validate:"max=256"`
	DaysBack    int    `toml:"days_back" json:"days_back,omitempty" validate:"min=0,max=3650"` // 0 = no time bound
}

// Normalized returns a copy with surrounding whitespace removed and status lowercased
func (c FilterCriteria) Normalized() FilterCriteria {
	return FilterCriteria{
		RunnerLabel: strings.TrimSpace(c.RunnerLabel),
		Status:      strings.ToLower(strings.TrimSpace(c.Status)),
		RepoPattern: strings.TrimSpace(c.RepoPattern),
		DaysBack:    c.DaysBack,
	}
}

// IsEmpty reports whether no criterion is set
func (c FilterCriteria) IsEmpty() bool {
	n := c.Normalized()
	return n.RunnerLabel == "" && n.Status == "" && n.RepoPattern == "" && n.DaysBack == 0
}
