package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/runner-usage/internal/analysis"
	"github.com/ternarybob/runner-usage/internal/common"
	"github.com/ternarybob/runner-usage/internal/connectors/github"
	"github.com/ternarybob/runner-usage/internal/models"
	"github.com/ternarybob/runner-usage/internal/report"
)

// Collector fetches the raw jobs for an organization
type Collector interface {
	Collect(ctx context.Context, opts github.CollectOptions) (*models.Batch, error)
}

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	Collector Collector
	Pipeline  *analysis.Pipeline
	Writer    *report.Writer

	now func() time.Time
}

// Outcome is what a single Run produced
type Outcome struct {
	Result *models.AnalysisResult
	Meta   report.Meta
	Files  []string
}

// Option customizes an App
type Option func(*App)

// WithCollector replaces the GitHub connector
func WithCollector(c Collector) Option {
	return func(a *App) {
		a.Collector = c
	}
}

// WithReportWriter replaces the report writer built from the output config
func WithReportWriter(w *report.Writer) Option {
	return func(a *App) {
		a.Writer = w
	}
}

// WithClock sets the reference time used for the analysis window and report metadata
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// New validates cfg and initializes all components. Invalid filter criteria or
// an unknown group_by fail here, before any API request is made.
func New(cfg *common.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(app)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pipeline, err := analysis.NewPipeline(cfg.Analysis.Criteria(), models.GroupKey(cfg.Analysis.GroupBy), logger, analysis.WithClock(app.now))
	if err != nil {
		return nil, fmt.Errorf("invalid analysis settings: %w", err)
	}
	app.Pipeline = pipeline

	if app.Collector == nil {
		connector, err := github.NewConnector(&cfg.GitHub, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GitHub connector: %w", err)
		}
		app.Collector = connector
	}

	if app.Writer == nil {
		app.Writer = report.NewWriter(cfg.Output, logger)
	}

	logger.Debug().
		Str("org", cfg.GitHub.Org).
		Str("group_by", string(pipeline.GroupKey())).
		Strs("formats", cfg.Output.Formats).
		Msg("Application initialization complete")

	return app, nil
}

// Run collects the organization's jobs, analyzes them and writes the reports
func (a *App) Run(ctx context.Context) (*Outcome, error) {
	now := a.now()
	analysisCfg := a.Config.Analysis

	a.Logger.Info().
		Str("org", a.Config.GitHub.Org).
		Int("days_back", analysisCfg.DaysBack).
		Str("runner_label", analysisCfg.RunnerLabel).
		Str("status", analysisCfg.Status).
		Str("repo_pattern", analysisCfg.RepoPattern).
		Str("group_by", string(a.Pipeline.GroupKey())).
		Msg("Starting runner usage analysis")

	batch, err := a.Collector.Collect(ctx, github.CollectOptions{
		DaysBack:          analysisCfg.DaysBack,
		RepoPattern:       analysisCfg.RepoPattern,
		DefaultBranchOnly: a.Config.GitHub.DefaultBranchOnly,
		Now:               now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect workflow jobs: %w", err)
	}

	result := a.Pipeline.Run(batch)
	meta := report.NewMeta(a.Config.GitHub.Org, a.Pipeline.Criteria(), batch.Stats, now)

	files, err := a.Writer.WriteAll(result, meta)
	if err != nil {
		return nil, err
	}

	if result.Overall.Jobs == 0 {
		a.Logger.Warn().
			Str("org", a.Config.GitHub.Org).
			Msg("No jobs found matching the specified criteria")
	} else {
		a.Logger.Info().
			Int("jobs", result.Overall.Jobs).
			Int("repositories", result.Overall.Repositories).
			Int("groups", len(result.Groups)).
			Int("skipped_malformed", result.Diagnostics.SkippedMalformed).
			Str("success_rate", fmt.Sprintf("%.1f%%", result.Overall.SuccessRate*100)).
			Msg("Analysis complete")
	}
	a.Logger.Info().Strs("files", files).Str("report_id", meta.ID).Msg("Reports generated")

	return &Outcome{Result: result, Meta: meta, Files: files}, nil
}
