package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/runner-usage/internal/common"
)

var defaultConfigFiles = []string{"runner-usage.toml", "deployments/local/runner-usage.toml"}

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported
	overrides   common.FlagOverrides
	daysBack    int

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "runner-usage",
	Short: "Analyze GitHub Actions runner usage for an organization",
	Long: `Collects the workflow jobs of an organization's repositories, classifies the
runners they used and writes CSV, HTML, markdown, PDF and metrics reports.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runAnalyze,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Runner usage analysis failed")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// setup runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Initialize logger
// 4. Print banner
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		for _, path := range defaultConfigFiles {
			if _, err := os.Stat(path); err == nil {
				configFiles = append(configFiles, path)
				break
			}
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configFiles, err)
	}

	if cmd.Flags().Changed("days-back") {
		overrides.DaysBack = &daysBack
	}
	common.ApplyFlagOverrides(config, overrides)

	common.InstallCrashHandler(config.Logging.Dir)
	logger = common.InitLogger(config)
	common.PrintBanner(common.Version)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("org", config.GitHub.Org).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Strs("formats", config.Output.Formats).
		Str("output_dir", config.Output.Dir).
		Msg("Resolved configuration (sanitized)")

	return nil
}
