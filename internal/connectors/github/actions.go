package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/ternarybob/runner-usage/internal/models"
)

// CollectOptions narrows what Collect fetches
type CollectOptions struct {
	// DaysBack limits workflow runs to those created in the last N days (0 = no limit)
	DaysBack int
	// RepoPattern skips repositories whose name does not contain it (case-insensitive)
	RepoPattern string
	// DefaultBranchOnly restricts runs to each repository's default branch
	DefaultBranchOnly bool
	// Now is the reference time for DaysBack, time.Now when zero
	Now time.Time
}

// Collect fetches every job of every workflow run of the organization's repositories.
// Failing to list repositories is fatal; failures for a single repository are logged
// and that repository is skipped.
func (c *Connector) Collect(ctx context.Context, opts CollectOptions) (*models.Batch, error) {
	startTime := time.Now()

	repos, err := c.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	batch := &models.Batch{
		Org:          c.org,
		Runs:         make(map[int64]*models.WorkflowRun),
		Repositories: make(models.RepositoryIndex, len(repos)),
	}

	var since time.Time
	if opts.DaysBack > 0 {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		since = now.AddDate(0, 0, -opts.DaysBack)
	}

	pattern := strings.ToLower(strings.TrimSpace(opts.RepoPattern))
	selected := make([]*models.Repository, 0, len(repos))
	for _, repo := range repos {
		if pattern != "" && !strings.Contains(strings.ToLower(repo.Name), pattern) {
			continue
		}
		selected = append(selected, repo)
	}
	if pattern != "" {
		c.logger.Info().
			Str("pattern", opts.RepoPattern).
			Int("matched", len(selected)).
			Int("total", len(repos)).
			Msg("Repository filter applied")
	}

	for idx, repo := range selected {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collection cancelled: %w", err)
		}

		batch.Repositories[repo.Name] = repo
		batch.Stats.Repositories++

		c.logger.Info().
			Str("repo", repo.Name).
			Int("index", idx+1).
			Int("total", len(selected)).
			Msg("Processing repository")

		branch := ""
		if opts.DefaultBranchOnly {
			branch = repo.DefaultBranch
		}

		runs, err := c.ListWorkflowRuns(ctx, repo.Name, branch, since)
		if err != nil {
			batch.Stats.RepositoryFails++
			c.logger.Error().Err(err).Str("repo", repo.Name).Msg("Failed to fetch workflow runs")
			continue
		}

		for _, run := range runs {
			batch.Runs[run.ID] = run
			batch.Stats.Runs++

			jobs, err := c.ListJobs(ctx, repo.Name, run.ID)
			if err != nil {
				c.logger.Error().Err(err).Str("repo", repo.Name).Int64("run_id", run.ID).Msg("Failed to fetch jobs for run")
				continue
			}
			batch.Jobs = append(batch.Jobs, jobs...)
			batch.Stats.Jobs += len(jobs)
		}
	}

	batch.Stats.APICalls = c.apiCalls
	batch.Stats.RateRemaining = c.rateRemaining
	batch.Stats.Duration = time.Since(startTime)

	c.logger.Info().
		Int("repositories", batch.Stats.Repositories).
		Int("runs", batch.Stats.Runs).
		Int("jobs", batch.Stats.Jobs).
		Int("api_calls", batch.Stats.APICalls).
		Dur("duration", batch.Stats.Duration).
		Msg("Collection complete")

	return batch, nil
}

// ListRepositories returns the organization's repositories, most recently updated first
func (c *Connector) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	c.logger.Info().Str("org", c.org).Msg("Fetching repositories for organization")

	var result []*models.Repository

	opts := &github.RepositoryListByOrgOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: c.perPage},
	}

	for page := 1; ; page++ {
		if c.pageLimitReached(page) {
			c.logger.Warn().Int("max_pages", c.maxPages).Msg("Reached maximum page limit for repositories")
			break
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		repos, resp, err := c.client.Repositories.ListByOrg(ctx, c.org, opts)
		c.observe(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for %s: %w", c.org, err)
		}

		for _, r := range repos {
			result = append(result, toRepository(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Info().Int("count", len(result)).Msg("Found repositories")
	return result, nil
}

// ListWorkflowRuns returns the runs of a repository, optionally limited to one branch
// and to runs created at or after since
func (c *Connector) ListWorkflowRuns(ctx context.Context, repo, branch string, since time.Time) ([]*models.WorkflowRun, error) {
	opts := &github.ListWorkflowRunsOptions{
		Branch:      branch,
		ListOptions: github.ListOptions{PerPage: c.perPage},
	}
	if !since.IsZero() {
		opts.Created = ">=" + since.UTC().Format("2006-01-02T15:04:05Z")
	}

	var result []*models.WorkflowRun
	for page := 1; ; page++ {
		if c.pageLimitReached(page) {
			c.logger.Warn().Str("repo", repo).Int("max_pages", c.maxPages).Msg("Reached maximum page limit for workflow runs")
			break
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		runs, resp, err := c.client.Actions.ListRepositoryWorkflowRuns(ctx, c.org, repo, opts)
		c.observe(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflow runs: %w", err)
		}

		for _, r := range runs.WorkflowRuns {
			result = append(result, toWorkflowRun(repo, r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug().Str("repo", repo).Int("runs", len(result)).Msg("Fetched workflow runs")
	return result, nil
}

// ListJobs returns the jobs of the latest attempt of a workflow run
func (c *Connector) ListJobs(ctx context.Context, repo string, runID int64) ([]models.RawJob, error) {
	opts := &github.ListWorkflowJobsOptions{
		Filter:      "latest",
		ListOptions: github.ListOptions{PerPage: c.perPage},
	}

	var result []models.RawJob
	for page := 1; ; page++ {
		if c.pageLimitReached(page) {
			c.logger.Warn().Str("repo", repo).Int64("run_id", runID).Int("max_pages", c.maxPages).Msg("Reached maximum page limit for jobs")
			break
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		jobs, resp, err := c.client.Actions.ListWorkflowJobs(ctx, c.org, repo, runID, opts)
		c.observe(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs for run %d: %w", runID, err)
		}

		for _, j := range jobs.Jobs {
			result = append(result, toRawJob(repo, runID, j))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return result, nil
}

func toRepository(r *github.Repository) *models.Repository {
	visibility := r.GetVisibility()
	if visibility == "" {
		visibility = "public"
		if r.GetPrivate() {
			visibility = "private"
		}
	}
	return &models.Repository{
		Name:          r.GetName(),
		Language:      r.GetLanguage(),
		Size:          r.GetSize(),
		Visibility:    visibility,
		DefaultBranch: r.GetDefaultBranch(),
	}
}

func toWorkflowRun(repo string, r *github.WorkflowRun) *models.WorkflowRun {
	return &models.WorkflowRun{
		ID:           r.GetID(),
		RepoName:     repo,
		WorkflowName: r.GetName(),
		WorkflowID:   r.GetWorkflowID(),
		Branch:       r.GetHeadBranch(),
		Event:        r.GetEvent(),
		RunAttempt:   r.GetRunAttempt(),
		HTMLURL:      r.GetHTMLURL(),
	}
}

// toRawJob keeps whatever the API returned; missing IDs are left for the analysis
// to reject as malformed
func toRawJob(repo string, runID int64, j *github.WorkflowJob) models.RawJob {
	job := models.RawJob{
		ID:           j.GetID(),
		RunID:        j.GetRunID(),
		RepoName:     repo,
		WorkflowName: j.GetWorkflowName(),
		Branch:       j.GetHeadBranch(),
		Name:         j.GetName(),
		Status:       j.GetStatus(),
		Conclusion:   j.GetConclusion(),
		Labels:       append([]string(nil), j.Labels...),
		RunnerName:   j.GetRunnerName(),
		RunnerGroup:  j.GetRunnerGroupName(),
		HTMLURL:      j.GetHTMLURL(),
	}
	if job.RunID == 0 {
		job.RunID = runID
	}
	if j.StartedAt != nil {
		t := j.StartedAt.Time
		job.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := j.CompletedAt.Time
		job.CompletedAt = &t
	}
	return job
}
