package analysis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/runner-usage/internal/models"
)

func pipelineBatch() *models.Batch {
	started := testNow.Add(-2 * time.Hour)
	done := started.Add(2 * time.Minute)
	old := testNow.AddDate(0, 0, -10)
	oldDone := old.Add(5 * time.Minute)

	return &models.Batch{
		Org: "acme",
		Jobs: []models.RawJob{
			{ID: 1, RunID: 10, RepoName: "api", Name: "build", Status: "completed", Conclusion: "success", StartedAt: &started, CompletedAt: &done, Labels: []string{"ubuntu-latest"}},
			{ID: 2, RunID: 10, RepoName: "api", Name: "gpu-test", Status: "completed", Conclusion: "failure", StartedAt: &started, CompletedAt: &done, Labels: []string{"self-hosted", "gpu"}},
			{ID: 0, RunID: 10, RepoName: "api", Name: "broken"},
			{ID: 3, RunID: 11, RepoName: "web", Name: "lint", Status: "completed", Conclusion: "success", StartedAt: &old, CompletedAt: &oldDone, Labels: []string{"ubuntu-latest"}},
			{ID: 4, RunID: 0, RepoName: "web", Name: "orphan"},
		},
		Runs: map[int64]*models.WorkflowRun{
			10: {ID: 10, RepoName: "api", WorkflowName: "CI", Branch: "main"},
			11: {ID: 11, RepoName: "web", WorkflowName: "Lint", Branch: "main"},
		},
		Repositories: models.RepositoryIndex{
			"api": {Name: "api", Language: "Go", Visibility: "private"},
			"web": {Name: "web", Language: "TypeScript", Visibility: "public"},
		},
	}
}

func TestPipeline_Run(t *testing.T) {
	p, err := NewPipeline(models.FilterCriteria{DaysBack: 7}, models.GroupKeyRepo, arbor.NewLogger(), WithClock(fixedClock))
	require.NoError(t, err)

	result := p.Run(pipelineBatch())

	assert.Equal(t, 5, result.Diagnostics.InputJobs)
	assert.Equal(t, 2, result.Diagnostics.SkippedMalformed)
	assert.Equal(t, 1, result.Diagnostics.Filtered)

	require.Len(t, result.Records, 2)
	assert.Equal(t, "CI", result.Records[0].WorkflowName)
	assert.Equal(t, "Go", result.Records[0].RepoLanguage)

	require.Len(t, result.Groups, 1)
	assert.Equal(t, "api", result.Groups[0].Key)
	assert.Equal(t, 2, result.Groups[0].Jobs)
	assert.Equal(t, 0.5, result.Groups[0].SuccessRate)
	assert.Equal(t, 120.0, result.Groups[0].MeanDurationSeconds)
	assert.Equal(t, 2, result.Overall.Jobs)
}

func TestPipeline_InvalidConfigFailsFast(t *testing.T) {
	tests := []struct {
		name          string
		criteria      models.FilterCriteria
		groupKey      models.GroupKey
		wantCriterion string
	}{
		{name: "Unknown group key", groupKey: "owner", wantCriterion: "group_by"},
		{name: "Unknown status", criteria: models.FilterCriteria{Status: "done"}, groupKey: models.GroupKeyRepo, wantCriterion: "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPipeline(tt.criteria, tt.groupKey, nil)
			require.Error(t, err)
			assert.Nil(t, p)

			var cfgErr *models.InvalidFilterConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantCriterion, cfgErr.Criterion)
		})
	}
}

func TestPipeline_EmptyBatch(t *testing.T) {
	p, err := NewPipeline(models.FilterCriteria{}, models.GroupKeyLabel, nil)
	require.NoError(t, err)

	for _, batch := range []*models.Batch{nil, {}} {
		result := p.Run(batch)
		require.NotNil(t, result)
		assert.Equal(t, 0, result.Overall.Jobs)
		assert.Empty(t, result.Groups)
		assert.Empty(t, result.Records)
	}
}

func TestPipeline_GroupKeyCaseInsensitive(t *testing.T) {
	p, err := NewPipeline(models.FilterCriteria{}, "Runner_Type", nil)
	require.NoError(t, err)
	assert.Equal(t, models.GroupKeyRunnerType, p.GroupKey())
}
