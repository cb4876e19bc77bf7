package analysis

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/ternarybob/runner-usage/internal/models"
)

// OverallKey is the key of the overall statistics
const OverallKey = "all"

// Aggregate computes overall statistics and, unless key is GroupKeyNone, one
// GroupStats per distinct key value in first-seen order. Grouping by label fans a
// record out to every distinct label it carries; overall counts still count it once.
// Aggregate never fails: empty input gives zero counts and no groups.
func Aggregate(records []models.AnalysisRecord, key models.GroupKey) *models.AnalysisResult {
	if key == "" {
		key = models.GroupKeyNone
	}

	overall := newAccumulator(OverallKey)
	for i := range records {
		overall.add(&records[i])
	}

	groups := []models.GroupStats{}
	if key != models.GroupKeyNone {
		index := buildGroupIndex(records, key)
		groups = make([]models.GroupStats, 0, len(index.order))
		for _, value := range index.order {
			acc := newAccumulator(value)
			for _, i := range index.members[value] {
				acc.add(&records[i])
			}
			groups = append(groups, acc.finish())
		}
	}

	return &models.AnalysisResult{
		GroupKey: key,
		Overall:  overall.finish(),
		Groups:   groups,
		Records:  records,
	}
}

// groupIndex is a multimap of key value -> record positions, keyed in first-seen order
type groupIndex struct {
	order   []string
	members map[string][]int
}

func buildGroupIndex(records []models.AnalysisRecord, key models.GroupKey) *groupIndex {
	idx := &groupIndex{members: make(map[string][]int)}
	for i := range records {
		for _, value := range GroupValues(&records[i], key) {
			if _, seen := idx.members[value]; !seen {
				idx.order = append(idx.order, value)
			}
			idx.members[value] = append(idx.members[value], i)
		}
	}
	return idx
}

// GroupValues returns the group(s) a record belongs to under key. Every key yields
// exactly one value except label, which yields one per distinct label. Empty values
// map to models.NoneGroupValue.
func GroupValues(rec *models.AnalysisRecord, key models.GroupKey) []string {
	switch key {
	case models.GroupKeyLabel:
		return distinctLabels(rec.Labels)
	case models.GroupKeyRepo:
		return []string{orNone(rec.Repo)}
	case models.GroupKeyStatus:
		return []string{orNone(rec.EffectiveStatus())}
	case models.GroupKeyWorkflow:
		return []string{orNone(rec.WorkflowName)}
	case models.GroupKeyBranch:
		return []string{orNone(rec.Branch)}
	case models.GroupKeyRunnerType:
		return []string{orNone(string(rec.RunnerType))}
	case models.GroupKeyCostCategory:
		return []string{orNone(string(rec.CostCategory))}
	default:
		return nil
	}
}

func distinctLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	if len(out) == 0 {
		return []string{models.NoneGroupValue}
	}
	return out
}

func orNone(v string) string {
	if v == "" {
		return models.NoneGroupValue
	}
	return v
}

type accumulator struct {
	stats     models.GroupStats
	durations stats.Float64Data
	repos     map[string]bool
}

func newAccumulator(key string) *accumulator {
	return &accumulator{
		stats: models.GroupStats{Key: key},
		repos: make(map[string]bool),
	}
}

func (a *accumulator) add(rec *models.AnalysisRecord) {
	a.stats.Jobs++
	switch outcome(rec) {
	case outcomeSuccess:
		a.stats.Success++
	case outcomeFailure:
		a.stats.Failure++
	default:
		a.stats.Other++
	}

	if rec.DurationSeconds != nil {
		a.durations = append(a.durations, *rec.DurationSeconds)
	}

	if rec.Repo != "" && !a.repos[rec.Repo] {
		if len(a.repos) == 0 {
			a.stats.SampleRepository = rec.Repo
		}
		a.repos[rec.Repo] = true
	}
}

func (a *accumulator) finish() models.GroupStats {
	s := a.stats
	s.Repositories = len(a.repos)

	if finished := s.Success + s.Failure; finished > 0 {
		s.SuccessRate = float64(s.Success) / float64(finished)
	}

	s.DurationSamples = len(a.durations)
	if s.DurationSamples > 0 {
		// stats only errors on empty input, which is excluded above
		s.TotalDurationSeconds, _ = a.durations.Sum()
		s.MeanDurationSeconds, _ = a.durations.Mean()
		s.MedianDurationSeconds, _ = a.durations.Median()
		s.P95DurationSeconds = percentile(a.durations, 95)
	}

	return s
}

// percentile falls back to the maximum when the sample is too small for the
// nearest-rank calculation
func percentile(data stats.Float64Data, p float64) float64 {
	v, err := data.Percentile(p)
	if err != nil || math.IsNaN(v) {
		v, _ = data.Max()
	}
	return v
}
