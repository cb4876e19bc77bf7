package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ternarybob/runner-usage/internal/analysis"
	"github.com/ternarybob/runner-usage/internal/models"
)

const metricsNamespace = "runner_usage"

// Metrics holds the gauges exported for one analysis run
type Metrics struct {
	registry *prometheus.Registry

	jobs            *prometheus.GaugeVec
	successRatio    *prometheus.GaugeVec
	durationMean    *prometheus.GaugeVec
	durationP95     *prometheus.GaugeVec
	durationTotal   *prometheus.GaugeVec
	skipped         prometheus.Gauge
	apiCalls        prometheus.Gauge
	reportTimestamp prometheus.Gauge
}

// NewMetrics builds a registry populated from result. The overall statistics
// are exported with group="all".
func NewMetrics(result *models.AnalysisResult, meta Meta) (*Metrics, error) {
	groupKey := models.GroupKeyNone
	if result != nil {
		groupKey = result.GroupKey
	}
	constLabels := prometheus.Labels{"org": meta.Org, "group_key": string(groupKey)}

	gaugeVec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"org": meta.Org},
		})
	}

	m := &Metrics{
		registry:        prometheus.NewRegistry(),
		jobs:            gaugeVec("jobs", "Workflow jobs in the analysis window by group and outcome.", "group", "outcome"),
		successRatio:    gaugeVec("success_ratio", "Successful jobs over finished jobs.", "group"),
		durationMean:    gaugeVec("duration_seconds_mean", "Mean job duration in seconds.", "group"),
		durationP95:     gaugeVec("duration_seconds_p95", "95th percentile job duration in seconds.", "group"),
		durationTotal:   gaugeVec("duration_seconds_total", "Summed job duration in seconds.", "group"),
		skipped:         gauge("skipped_malformed_jobs", "Jobs skipped because they lacked a job or run ID."),
		apiCalls:        gauge("api_calls", "GitHub API requests made to collect the jobs."),
		reportTimestamp: gauge("report_timestamp_seconds", "Unix time the report was generated."),
	}

	for _, c := range []prometheus.Collector{
		m.jobs, m.successRatio, m.durationMean, m.durationP95, m.durationTotal,
		m.skipped, m.apiCalls, m.reportTimestamp,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	if result != nil {
		m.observe(analysis.OverallKey, result.Overall)
		for _, g := range result.Groups {
			m.observe(g.Key, g)
		}
		m.skipped.Set(float64(result.Diagnostics.SkippedMalformed))
	}
	m.apiCalls.Set(float64(meta.Stats.APICalls))
	m.reportTimestamp.Set(float64(meta.GeneratedAt.Unix()))

	return m, nil
}

func (m *Metrics) observe(group string, g models.GroupStats) {
	m.jobs.WithLabelValues(group, "success").Set(float64(g.Success))
	m.jobs.WithLabelValues(group, "failure").Set(float64(g.Failure))
	m.jobs.WithLabelValues(group, "other").Set(float64(g.Other))
	m.successRatio.WithLabelValues(group).Set(g.SuccessRate)
	m.durationMean.WithLabelValues(group).Set(g.MeanDurationSeconds)
	m.durationP95.WithLabelValues(group).Set(g.P95DurationSeconds)
	m.durationTotal.WithLabelValues(group).Set(g.TotalDurationSeconds)
}

// Registry exposes the populated registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteMetrics writes the node-exporter textfile for result to path
func WriteMetrics(path string, result *models.AnalysisResult, meta Meta) error {
	m, err := NewMetrics(result, meta)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
