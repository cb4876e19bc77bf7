package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ternarybob/runner-usage/internal/common"
)

// rateLimitWarnThreshold is the remaining-request count below which a warning is logged
const rateLimitWarnThreshold = 100

// Connector reads organization repositories, workflow runs and jobs from the GitHub API
type Connector struct {
	client   *github.Client
	limiter  *rate.Limiter
	logger   arbor.ILogger
	org      string
	perPage  int
	maxPages int

	apiCalls      int
	rateRemaining int
}

// NewConnector creates a GitHub connector from configuration
func NewConnector(cfg *common.GitHubConfig, logger arbor.ILogger) (*Connector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("github config is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	if cfg.Org == "" {
		return nil, fmt.Errorf("github organization is required")
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}

	// Transient failures (5xx, 429, connection resets) are retried below the auth layer
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.HTTPClient.Timeout = cfg.RequestTimeout()
	retryClient.Logger = &retryLogger{logger: logger}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, retryClient.StandardClient())
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	if cfg.APIURL != "" {
		baseURL, err := parseBaseURL(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = baseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	perPage := cfg.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}

	return &Connector{
		client:        client,
		limiter:       rate.NewLimiter(limit, 1),
		logger:        logger,
		org:           cfg.Org,
		perPage:       perPage,
		maxPages:      cfg.MaxPages,
		rateRemaining: -1,
	}, nil
}

// Org returns the organization the connector reads
func (c *Connector) Org() string {
	return c.org
}

// TestConnection verifies the token works by getting the authenticated user
func (c *Connector) TestConnection(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, resp, err := c.client.Users.Get(ctx, "")
	c.observe(resp)
	if err != nil {
		return fmt.Errorf("github connection test failed: %w", err)
	}
	return nil
}

// wait blocks until the limiter allows another request
func (c *Connector) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	c.apiCalls++
	return nil
}

// observe records rate limit information from a response
func (c *Connector) observe(resp *github.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		return
	}
	c.rateRemaining = resp.Rate.Remaining
	if c.rateRemaining < rateLimitWarnThreshold {
		c.logger.Warn().
			Int("remaining", c.rateRemaining).
			Str("reset", resp.Rate.Reset.Time.Format(time.RFC3339)).
			Msg("GitHub rate limit running low")
	}
}

// pageLimitReached reports whether page is past the configured page cap
func (c *Connector) pageLimitReached(page int) bool {
	return c.maxPages > 0 && page > c.maxPages
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid github api url %q: %w", raw, err)
	}
	return u, nil
}

// retryLogger adapts arbor to retryablehttp.LeveledLogger
type retryLogger struct {
	logger arbor.ILogger
}

var _ retryablehttp.LeveledLogger = (*retryLogger)(nil)

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Str("fields", formatKV(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", formatKV(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", formatKV(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Str("fields", formatKV(keysAndValues)).Msg(msg)
}

func formatKV(kv []interface{}) string {
	var sb strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%v=%v", kv[i], kv[i+1])
	}
	return sb.String()
}
