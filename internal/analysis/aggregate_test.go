package analysis

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/runner-usage/internal/models"
)

func TestAggregate_RepoScenario(t *testing.T) {
	records := []models.AnalysisRecord{
		record("api", []string{"ubuntu-latest"}, "success", 120),
		record("api", []string{"self-hosted", "gpu"}, "failure", 300),
	}

	result := Aggregate(records, models.GroupKeyRepo)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, "api", g.Key)
	assert.Equal(t, 2, g.Jobs)
	assert.Equal(t, 1, g.Success)
	assert.Equal(t, 1, g.Failure)
	assert.Equal(t, 0.5, g.SuccessRate)
	assert.Equal(t, 210.0, g.MeanDurationSeconds)
	assert.Equal(t, 2, g.DurationSamples)
	assert.Equal(t, 420.0, g.TotalDurationSeconds)
	assert.Equal(t, "api", g.SampleRepository)
	assert.Equal(t, 1, g.Repositories)

	assert.Equal(t, OverallKey, result.Overall.Key)
	assert.Equal(t, 2, result.Overall.Jobs)
}

func TestAggregate_EmptyInput(t *testing.T) {
	for _, key := range models.GroupKeys {
		t.Run(string(key), func(t *testing.T) {
			result := Aggregate(nil, key)
			require.NotNil(t, result)
			assert.Equal(t, 0, result.Overall.Jobs)
			assert.Equal(t, 0.0, result.Overall.SuccessRate)
			assert.Equal(t, 0.0, result.Overall.MeanDurationSeconds)
			assert.NotNil(t, result.Groups)
			assert.Empty(t, result.Groups)
		})
	}
}

func TestAggregate_NoneHasNoGroups(t *testing.T) {
	records := []models.AnalysisRecord{
		record("api", []string{"ubuntu-latest"}, "success", 60),
		record("web", []string{"windows-latest"}, "failure", 30),
	}

	result := Aggregate(records, models.GroupKeyNone)
	assert.Empty(t, result.Groups)
	assert.False(t, result.IsGrouped())
	assert.Equal(t, 2, result.Overall.Jobs)
	assert.Equal(t, 2, result.Overall.Repositories)
}

func TestAggregate_LabelFanOut(t *testing.T) {
	records := []models.AnalysisRecord{
		record("api", []string{"self-hosted", "linux", "gpu"}, "success", 100),
		record("api", []string{"ubuntu-latest"}, "failure", 50),
	}

	result := Aggregate(records, models.GroupKeyLabel)

	require.Len(t, result.Groups, 4)
	assert.Equal(t, "self-hosted", result.Groups[0].Key)
	assert.Equal(t, "linux", result.Groups[1].Key)
	assert.Equal(t, "gpu", result.Groups[2].Key)
	assert.Equal(t, "ubuntu-latest", result.Groups[3].Key)
	for _, g := range result.Groups[:3] {
		assert.Equal(t, 1, g.Jobs)
		assert.Equal(t, 1, g.Success)
	}

	// overall counts each record once
	assert.Equal(t, 2, result.Overall.Jobs)
}

func TestAggregate_LabelDuplicatesCountedOnce(t *testing.T) {
	records := []models.AnalysisRecord{
		record("api", []string{"gpu", "gpu", "linux"}, "success", 10),
	}

	result := Aggregate(records, models.GroupKeyLabel)
	require.Len(t, result.Groups, 2)
	assert.Equal(t, 1, result.Groups[0].Jobs)
}

func TestAggregate_FirstSeenOrder(t *testing.T) {
	records := []models.AnalysisRecord{
		record("zeta", nil, "success", 1),
		record("alpha", nil, "success", 1),
		record("zeta", nil, "failure", 1),
		record("mid", nil, "success", 1),
	}

	result := Aggregate(records, models.GroupKeyRepo)
	keys := make([]string, 0, len(result.Groups))
	for _, g := range result.Groups {
		keys = append(keys, g.Key)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)
}

func TestAggregate_EmptyKeyValueUsesSentinel(t *testing.T) {
	records := []models.AnalysisRecord{
		{JobID: 1, Repo: "api", Labels: nil},
		{JobID: 2, Repo: "api", Labels: []string{"ubuntu-latest"}},
	}

	byBranch := Aggregate(records, models.GroupKeyBranch)
	require.Len(t, byBranch.Groups, 1)
	assert.Equal(t, models.NoneGroupValue, byBranch.Groups[0].Key)
	assert.Equal(t, 2, byBranch.Groups[0].Jobs)

	byLabel := Aggregate(records, models.GroupKeyLabel)
	require.Len(t, byLabel.Groups, 2)
	assert.Equal(t, models.NoneGroupValue, byLabel.Groups[0].Key)
}

func TestAggregate_AllInProgressHasZeroRate(t *testing.T) {
	records := []models.AnalysisRecord{
		{JobID: 1, Repo: "api", Status: "in_progress"},
		{JobID: 2, Repo: "api", Status: "queued"},
	}

	result := Aggregate(records, models.GroupKeyRepo)
	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, 2, g.Other)
	assert.Equal(t, 0, g.Success+g.Failure)
	assert.Equal(t, 0.0, g.SuccessRate)
	assert.False(t, math.IsNaN(g.SuccessRate))
	assert.Equal(t, 0, g.DurationSamples)
	assert.Equal(t, 0.0, g.MeanDurationSeconds)
}

func TestAggregate_UnknownDurationsExcludedFromMean(t *testing.T) {
	records := []models.AnalysisRecord{
		{JobID: 1, Repo: "api", Conclusion: "success", DurationSeconds: ptrFloat(100), Success: ptrBool(true)},
		{JobID: 2, Repo: "api", Status: "in_progress"},
		{JobID: 3, Repo: "api", Conclusion: "success", DurationSeconds: ptrFloat(200), Success: ptrBool(true)},
	}

	result := Aggregate(records, models.GroupKeyNone)
	assert.Equal(t, 3, result.Overall.Jobs)
	assert.Equal(t, 2, result.Overall.DurationSamples)
	assert.Equal(t, 150.0, result.Overall.MeanDurationSeconds)
	assert.Equal(t, 150.0, result.Overall.MedianDurationSeconds)
	assert.Equal(t, 1.0, result.Overall.SuccessRate)
}

func TestAggregate_StatusUsesConclusionThenStatus(t *testing.T) {
	records := []models.AnalysisRecord{
		{JobID: 1, Status: "completed", Conclusion: "success"},
		{JobID: 2, Status: "in_progress"},
		{JobID: 3, Status: "completed", Conclusion: "failure"},
	}

	result := Aggregate(records, models.GroupKeyStatus)
	keys := make([]string, 0, len(result.Groups))
	for _, g := range result.Groups {
		keys = append(keys, g.Key)
	}
	assert.Equal(t, []string{"success", "in_progress", "failure"}, keys)
}

func TestAggregate_Idempotent(t *testing.T) {
	records := []models.AnalysisRecord{
		record("api", []string{"ubuntu-latest", "8-core"}, "success", 120),
		record("web", []string{"self-hosted", "gpu"}, "failure", 300),
		record("api", []string{"windows-latest"}, "", 0),
		record("docs", []string{"macos-latest"}, "success", 45),
	}
	f, err := NewFilter(models.FilterCriteria{RunnerLabel: "latest"}, WithClock(fixedClock))
	require.NoError(t, err)

	for _, key := range models.GroupKeys {
		first, err := json.Marshal(Aggregate(f.Apply(records), key).Groups)
		require.NoError(t, err)
		second, err := json.Marshal(Aggregate(f.Apply(records), key).Groups)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second), "group key %s", key)
	}
}

func TestGroupValues_OneValuePerNonLabelKey(t *testing.T) {
	rec := record("api", []string{"a", "b", "c"}, "success", 1)
	for _, key := range models.GroupKeys {
		if key == models.GroupKeyNone {
			assert.Empty(t, GroupValues(&rec, key))
			continue
		}
		if key == models.GroupKeyLabel {
			assert.Len(t, GroupValues(&rec, key), 3)
			continue
		}
		assert.Len(t, GroupValues(&rec, key), 1, "group key %s", key)
	}
}
