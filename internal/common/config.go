package common

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/runner-usage/internal/models"
)

// Report formats understood by the output section
const (
	FormatCSV     = "csv"
	FormatHTML    = "html"
	FormatSummary = "summary"
	FormatPDF     = "pdf"
	FormatMetrics = "metrics"
)

// AllFormats lists every report format in the order reports are written
var AllFormats = []string{FormatCSV, FormatHTML, FormatSummary, FormatPDF, FormatMetrics}

// Config represents the application configuration
type Config struct {
	GitHub   GitHubConfig   `toml:"github"`
	Analysis AnalysisConfig `toml:"analysis"`
	Output   OutputConfig   `toml:"output"`
	Logging  LoggingConfig  `toml:"logging"`
}

// GitHubConfig configures access to the GitHub REST API
type GitHubConfig struct {
	Token             string  `toml:"token" validate:"required"`              // Personal access token or GITHUB_TOKEN
	Org               string  `toml:"org" validate:"required"`                // Organization to analyze
	APIURL            string  `toml:"api_url" validate:"omitempty,url"`       // GitHub Enterprise API root (default: api.github.com)
	PerPage           int     `toml:"per_page" validate:"min=1,max=100"`      // Page size for list endpoints
	MaxPages          int     `toml:"max_pages" validate:"min=0"`             // Page cap per listing (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"min=0"`   // Client-side throttle (0 = unlimited)
	RetryMax          int     `toml:"retry_max" validate:"min=0,max=10"`      // Retries for transient HTTP failures
	Timeout           string  `toml:"timeout" validate:"omitempty,duration"`  // Per-request timeout, e.g. "30s"
	DefaultBranchOnly bool    `toml:"default_branch_only"`                    // Only fetch runs of each repository's default branch
}

// RequestTimeout returns the parsed request timeout, 30s when unset or invalid
func (g GitHubConfig) RequestTimeout() time.Duration {
	if d, err := time.ParseDuration(g.Timeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// AnalysisConfig holds the filter criteria and grouping of a run
type AnalysisConfig struct {
	RunnerLabel string `toml:"runner_label"`
	Status      string `toml:"status"`
	RepoPattern string `toml:"repo_pattern"`
	DaysBack    int    `toml:"days_back"`
	GroupBy     string `toml:"group_by"`
}

// Criteria returns the filter criteria part of the analysis section
func (a AnalysisConfig) Criteria() models.FilterCriteria {
	return models.FilterCriteria{
		RunnerLabel: a.RunnerLabel,
		Status:      a.Status,
		RepoPattern: a.RepoPattern,
		DaysBack:    a.DaysBack,
	}
}

// OutputConfig selects and names the generated reports
type OutputConfig struct {
	Dir         string   `toml:"dir" validate:"required"`
	Formats     []string `toml:"formats" validate:"dive,oneof=csv html summary pdf metrics"`
	CSVFile     string   `toml:"csv_file"`
	HTMLFile    string   `toml:"html_file"`
	SummaryFile string   `toml:"summary_file"`
	PDFFile     string   `toml:"pdf_file"`
	MetricsFile string   `toml:"metrics_file"`
	TopN        int      `toml:"top_n" validate:"min=1,max=100"` // Entries in top repository/label charts
	RecentJobs  int      `toml:"recent_jobs" validate:"min=0"`   // Rows in the summary's recent jobs table
	StepSummary bool     `toml:"step_summary"`                   // Also write the summary to $GITHUB_STEP_SUMMARY
}

// Enabled reports whether a report format is selected
func (o OutputConfig) Enabled(format string) bool {
	for _, f := range o.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                                      // "stdout", "file"
	Dir        string   `toml:"dir"`                                                         // Directory for log and crash files
	TimeFormat string   `toml:"time_format"`                                                 // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			PerPage:           100,
			MaxPages:          10,
			RequestsPerSecond: 10,
			RetryMax:          3,
			Timeout:           "30s",
			DefaultBranchOnly: true,
		},
		Analysis: AnalysisConfig{
			DaysBack: 30,
			GroupBy:  string(models.GroupKeyNone),
		},
		Output: OutputConfig{
			Dir:         ".",
			Formats:     []string{FormatCSV, FormatHTML, FormatSummary},
			CSVFile:     "runner_usage_report.csv",
			HTMLFile:    "runner_usage_report.html",
			SummaryFile: "runner_usage_summary.md",
			PDFFile:     "runner_usage_report.pdf",
			MetricsFile: "runner_usage.prom",
			TopN:        10,
			RecentJobs:  10,
			StepSummary: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			Dir:        "./logs",
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The unprefixed names are the ones a GitHub Actions workflow passes in.
// A numeric variable that does not parse is an error, never silently ignored.
func applyEnvOverrides(config *Config) error {
	// GitHub configuration
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if org := os.Getenv("ORG_NAME"); org != "" {
		config.GitHub.Org = org
	}
	if apiURL := os.Getenv("RUNNER_USAGE_GITHUB_API_URL"); apiURL != "" {
		config.GitHub.APIURL = apiURL
	}
	if rps := os.Getenv("RUNNER_USAGE_REQUESTS_PER_SECOND"); rps != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(rps), 64)
		if err != nil {
			return fmt.Errorf("invalid RUNNER_USAGE_REQUESTS_PER_SECOND=%q: must be a number", rps)
		}
		config.GitHub.RequestsPerSecond = v
	}
	if maxPages := os.Getenv("RUNNER_USAGE_MAX_PAGES"); maxPages != "" {
		v, err := strconv.Atoi(strings.TrimSpace(maxPages))
		if err != nil {
			return fmt.Errorf("invalid RUNNER_USAGE_MAX_PAGES=%q: must be an integer", maxPages)
		}
		config.GitHub.MaxPages = v
	}

	// Analysis configuration
	if label := os.Getenv("TARGET_RUNNER_LABEL"); label != "" {
		config.Analysis.RunnerLabel = label
	}
	if daysBack := os.Getenv("DAYS_BACK"); daysBack != "" {
		v, err := strconv.Atoi(strings.TrimSpace(daysBack))
		if err != nil {
			return &models.InvalidFilterConfigError{
				Criterion: "days_back",
				Value:     daysBack,
				Reason:    "must be an integer",
			}
		}
		config.Analysis.DaysBack = v
	}
	if groupBy := os.Getenv("GROUP_BY"); groupBy != "" {
		config.Analysis.GroupBy = groupBy
	}
	if status := os.Getenv("STATUS_FILTER"); status != "" {
		config.Analysis.Status = status
	}
	if repo := os.Getenv("REPO_FILTER"); repo != "" {
		config.Analysis.RepoPattern = repo
	}

	// Output configuration
	if dir := os.Getenv("RUNNER_USAGE_OUTPUT_DIR"); dir != "" {
		config.Output.Dir = dir
	}
	if formats := splitList(os.Getenv("RUNNER_USAGE_FORMATS")); len(formats) > 0 {
		config.Output.Formats = formats
	}

	// Logging configuration
	if level := os.Getenv("RUNNER_USAGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if outputs := splitList(os.Getenv("RUNNER_USAGE_LOG_OUTPUT")); len(outputs) > 0 {
		config.Logging.Output = outputs
	}

	return nil
}

// FlagOverrides carries command-line values; nil or empty fields were not set
type FlagOverrides struct {
	Token       string
	Org         string
	RunnerLabel string
	Status      string
	RepoPattern string
	GroupBy     string
	OutputDir   string
	LogLevel    string
	DaysBack    *int
	Formats     []string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	// Command-line flags have highest priority
	if flags.Token != "" {
		config.GitHub.Token = flags.Token
	}
	if flags.Org != "" {
		config.GitHub.Org = flags.Org
	}
	if flags.RunnerLabel != "" {
		config.Analysis.RunnerLabel = flags.RunnerLabel
	}
	if flags.Status != "" {
		config.Analysis.Status = flags.Status
	}
	if flags.RepoPattern != "" {
		config.Analysis.RepoPattern = flags.RepoPattern
	}
	if flags.GroupBy != "" {
		config.Analysis.GroupBy = flags.GroupBy
	}
	if flags.DaysBack != nil {
		config.Analysis.DaysBack = *flags.DaysBack
	}
	if flags.OutputDir != "" {
		config.Output.Dir = flags.OutputDir
	}
	if len(flags.Formats) > 0 {
		config.Output.Formats = flags.Formats
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the configuration before any API call is made.
// Filter criteria and group_by are validated by the analysis pipeline.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "Config.github.token"; drop the root type name
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required":
		hint := ""
		switch field {
		case "github.token":
			hint = " (set GITHUB_TOKEN)"
		case "github.org":
			hint = " (set ORG_NAME)"
		}
		return fmt.Sprintf("%s is required%s", field, hint)
	case "oneof":
		return fmt.Sprintf("%s=%v must be one of [%s]", field, fe.Value(), fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s=%v violates %s=%s", field, fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s=%v is not a valid %s", field, fe.Value(), fe.Tag())
	}
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
