package analysis

import (
	"time"

	"github.com/ternarybob/runner-usage/internal/models"
)

var testNow = time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func ptrFloat(f float64) *float64 {
	return &f
}

func ptrBool(b bool) *bool {
	return &b
}

// record builds a normalized record the way Normalize would
func record(repo string, labels []string, conclusion string, duration float64) models.AnalysisRecord {
	started := testNow.Add(-time.Hour)
	completed := started.Add(time.Duration(duration) * time.Second)
	job := models.RawJob{
		ID:          int64(len(repo)*1000 + len(labels)*10 + int(duration)),
		RunID:       42,
		RepoName:    repo,
		Name:        "build",
		Status:      models.StatusCompleted,
		Conclusion:  conclusion,
		StartedAt:   &started,
		CompletedAt: &completed,
		Labels:      labels,
	}
	rec, err := Normalize(job, nil, nil)
	if err != nil {
		panic(err)
	}
	return rec
}
