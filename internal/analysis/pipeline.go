// Package analysis turns a fetched batch of workflow jobs into grouped statistics.
//
// The pipeline is normalize -> classify -> filter -> aggregate. It is a pure,
// single pass over in-memory data: no I/O, no goroutines, no shared state.
package analysis

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/runner-usage/internal/models"
)

// Pipeline runs a validated filter and grouping over a batch
type Pipeline struct {
	filter   *Filter
	groupKey models.GroupKey
	logger   arbor.ILogger
}

// NewPipeline validates the criteria and the group key up front. Any invalid value
// is returned as *models.InvalidFilterConfigError and no pipeline is built.
func NewPipeline(criteria models.FilterCriteria, groupKey models.GroupKey, logger arbor.ILogger, opts ...FilterOption) (*Pipeline, error) {
	key, err := models.ParseGroupKey(string(groupKey))
	if err != nil {
		return nil, err
	}

	filter, err := NewFilter(criteria, opts...)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = arbor.NewLogger()
	}

	return &Pipeline{
		filter:   filter,
		groupKey: key,
		logger:   logger,
	}, nil
}

// GroupKey returns the grouping used by Run
func (p *Pipeline) GroupKey() models.GroupKey {
	return p.groupKey
}

// Criteria returns the normalized filter criteria used by Run
func (p *Pipeline) Criteria() models.FilterCriteria {
	return p.filter.Criteria()
}

// Run normalizes every job of the batch, skipping malformed ones, then filters and
// aggregates the survivors. A nil batch is treated as empty.
func (p *Pipeline) Run(batch *models.Batch) *models.AnalysisResult {
	var jobs []models.RawJob
	var repos models.RepositoryIndex
	if batch != nil {
		jobs = batch.Jobs
		repos = batch.Repositories
	}

	records := make([]models.AnalysisRecord, 0, len(jobs))
	skipped := 0
	for _, job := range jobs {
		rec, err := Normalize(job, batch.Run(job), repos.Lookup(job.RepoName))
		if err != nil {
			skipped++
			p.logger.Warn().Err(err).Str("repo", job.RepoName).Msg("Skipping malformed job record")
			continue
		}
		records = append(records, rec)
	}

	filtered := p.filter.Apply(records)
	result := Aggregate(filtered, p.groupKey)
	result.Diagnostics = models.Diagnostics{
		InputJobs:        len(jobs),
		SkippedMalformed: skipped,
		Filtered:         len(records) - len(filtered),
	}

	p.logger.Info().
		Int("input_jobs", len(jobs)).
		Int("skipped_malformed", skipped).
		Int("matched", len(filtered)).
		Int("groups", len(result.Groups)).
		Str("group_by", string(p.groupKey)).
		Msg("Analysis complete")

	return result
}
