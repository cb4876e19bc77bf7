package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/runner-usage/internal/app"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Collect workflow jobs and write the usage reports",
	Long: `Fetches the workflow runs and jobs of every repository in the organization,
filters and groups them, and writes the configured report formats.`,
	RunE: runAnalyze,
}

func init() {
	// Registered on both commands so "runner-usage --org x" behaves like "runner-usage analyze --org x"
	for _, cmd := range []*cobra.Command{rootCmd, analyzeCmd} {
		flags := cmd.Flags()
		flags.StringVar(&overrides.Token, "token", "", "GitHub token (overrides GITHUB_TOKEN)")
		flags.StringVar(&overrides.Org, "org", "", "GitHub organization (overrides ORG_NAME)")
		flags.StringVar(&overrides.RunnerLabel, "runner-label", "", "Only include jobs with a runner label containing this value")
		flags.StringVar(&overrides.Status, "status", "", "Only include jobs with this status or conclusion")
		flags.StringVar(&overrides.RepoPattern, "repo", "", "Only include repositories whose name contains this value")
		flags.IntVar(&daysBack, "days-back", 0, "Only include jobs started in the last N days (0 = no limit)")
		flags.StringVar(&overrides.GroupBy, "group-by", "", "Group results by repo, label, status, workflow, branch, runner_type or cost_category")
		flags.StringVarP(&overrides.OutputDir, "output", "o", "", "Output directory for reports")
		flags.StringSliceVar(&overrides.Formats, "format", nil, "Report formats to write (csv, html, summary, pdf, metrics)")
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}

	_, err = application.Run(ctx)
	return err
}
