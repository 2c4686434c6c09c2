package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config adds monitor-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	ClaudeAPIKey          string
	ClaudeModel           string
	GitHubToken           string
	GitHubRepo            string
	GitHubBaseBranch      string
	DataPath              string
	RepoDataPath          string
	FeedsConfig           string
	ScanIntervalMinutes   int
	DatabaseURL           string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token for the manual scan endpoint (empty = endpoint closed)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.GitHubToken, "github-token", "", "GitHub token with repo scope for staging pull requests")
	fs.StringVar(&c.GitHubRepo, "github-repo", "", "GitHub repository to stage updates against, as owner/name")
	fs.StringVar(&c.GitHubBaseBranch, "github-base-branch", "main", "branch that update branches fork from and PRs target")
	fs.StringVar(&c.DataPath, "data-path", "data/incidents.json", "local path of the incident collection document")
	fs.StringVar(&c.RepoDataPath, "repo-data-path", "data/incidents.json", "path of the incident document within the GitHub repository")
	fs.StringVar(&c.FeedsConfig, "feeds-config", "", "path to the YAML feed sources file (empty = built-in defaults)")
	fs.IntVar(&c.ScanIntervalMinutes, "scan-interval-minutes", 360, "minutes between scheduled scans (1..10080)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for run history (empty = in-memory store)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude API key is required for extraction and dedup
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}

	// Claude model is required for LLM access
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	// GitHub credentials are required for staging pull requests
	if c.GitHubToken == "" {
		errs = append(errs, errors.New("GITHUB_TOKEN is required"))
	}
	if c.GitHubRepo == "" {
		errs = append(errs, errors.New("GITHUB_REPO is required"))
	} else if parts := strings.Split(c.GitHubRepo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		errs = append(errs, fmt.Errorf("invalid GITHUB_REPO %q (must be owner/name)", c.GitHubRepo))
	}
	if c.GitHubBaseBranch == "" {
		errs = append(errs, errors.New("GITHUB_BASE_BRANCH must not be empty"))
	}

	if c.DataPath == "" {
		errs = append(errs, errors.New("DATA_PATH must not be empty"))
	}
	if c.RepoDataPath == "" {
		errs = append(errs, errors.New("REPO_DATA_PATH must not be empty"))
	}

	// A week is the longest sensible scan interval
	if c.ScanIntervalMinutes <= 0 || c.ScanIntervalMinutes > 10080 {
		errs = append(errs, fmt.Errorf("invalid SCAN_INTERVAL_MINUTES %d (must be 1..10080)", c.ScanIntervalMinutes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
