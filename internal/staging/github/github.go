// Package github stages collection updates on a repository host as a
// reviewable pull request: branch off the base ref, replace the incident
// document, open the PR. Nothing is ever written to the base branch directly.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/mdwatch/mdwatch/internal/incident"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultBaseBranch = "main"
	defaultDataPath   = "data/incidents.json"
	httpTimeout       = 30 * time.Second
)

// Config carries the repository-host settings for the stager.
type Config struct {
	Token      string
	Repo       string // "owner/name"
	BaseURL    string // override for tests; defaults to the public API
	BaseBranch string
	DataPath   string // path of the incident document within the repo
}

// Client stages incident-collection updates via the GitHub REST API.
type Client struct {
	cfg    Config
	client *http.Client
	logger log.Logger

	// OnStep, if set, is called once per staging step with its status.
	OnStep func(step, status string)
}

// New creates a stager. Missing optional config falls back to defaults.
func New(cfg Config, logger log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = defaultBaseBranch
	}
	if cfg.DataPath == "" {
		cfg.DataPath = defaultDataPath
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout},
		logger: logger,
	}
}

// Stage proposes the full replacement collection document as a pull request
// and returns the PR URL. Any step failure aborts the remaining steps; the
// caller's in-memory and on-disk collection are untouched either way.
func (c *Client) Stage(ctx context.Context, col *incident.Collection, added int) (string, error) {
	branch := "update-incidents-" + time.Now().UTC().Format("20060102-150405")

	baseSHA, err := c.getRefSHA(ctx)
	if err != nil {
		return "", c.fail(ctx, "get_ref", err)
	}
	c.step("get_ref")

	if err := c.createRef(ctx, branch, baseSHA); err != nil {
		return "", c.fail(ctx, "create_branch", err)
	}
	c.step("create_branch")

	if err := c.replaceFile(ctx, branch, col, added); err != nil {
		return "", c.fail(ctx, "update_file", err)
	}
	c.step("update_file")

	prURL, err := c.openPullRequest(ctx, branch, added)
	if err != nil {
		return "", c.fail(ctx, "open_pr", err)
	}
	c.step("open_pr")

	c.logger.Info(ctx, "staged incident update",
		"branch", branch,
		"incidents_added", added,
		"pr_url", prURL,
	)
	return prURL, nil
}

func (c *Client) step(name string) {
	if c.OnStep != nil {
		c.OnStep(name, "ok")
	}
}

func (c *Client) fail(ctx context.Context, step string, err error) error {
	if c.OnStep != nil {
		c.OnStep(step, "error")
	}
	c.logger.Error(ctx, err, "staging step failed", "step", step)
	return fmt.Errorf("%s: %w", step, err)
}

func (c *Client) getRefSHA(ctx context.Context) (string, error) {
	var out struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	path := fmt.Sprintf("/repos/%s/git/ref/heads/%s", c.cfg.Repo, c.cfg.BaseBranch)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return "", err
	}
	if out.Object.SHA == "" {
		return "", fmt.Errorf("ref response carries no sha")
	}
	return out.Object.SHA, nil
}

func (c *Client) createRef(ctx context.Context, branch, sha string) error {
	body := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	path := fmt.Sprintf("/repos/%s/git/refs", c.cfg.Repo)
	return c.do(ctx, http.MethodPost, path, body, nil, http.StatusCreated)
}

// replaceFile PUTs the whole document, base64-encoded. The API demands the
// current blob SHA when the file already exists, so that is fetched first.
func (c *Client) replaceFile(ctx context.Context, branch string, col *incident.Collection, added int) error {
	content, err := json.MarshalIndent(col, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	content = append(content, '\n')

	fileSHA, err := c.getFileSHA(ctx)
	if err != nil {
		return err
	}

	body := map[string]string{
		"message": fmt.Sprintf("Add %d new incidents", added),
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	if fileSHA != "" {
		body["sha"] = fileSHA
	}
	path := fmt.Sprintf("/repos/%s/contents/%s", c.cfg.Repo, c.cfg.DataPath)
	// 200 on update, 201 on create.
	if err := c.do(ctx, http.MethodPut, path, body, nil, http.StatusOK, http.StatusCreated); err != nil {
		return err
	}
	return nil
}

// getFileSHA returns the current blob SHA of the data file on the base
// branch, or "" when the file does not exist yet.
func (c *Client) getFileSHA(ctx context.Context) (string, error) {
	var out struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", c.cfg.Repo, c.cfg.DataPath, url.QueryEscape(c.cfg.BaseBranch))
	err := c.do(ctx, http.MethodGet, path, nil, &out, http.StatusOK)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return out.SHA, nil
}

func (c *Client) openPullRequest(ctx context.Context, branch string, added int) (string, error) {
	body := map[string]string{
		"title": fmt.Sprintf("Add %d new incidents", added),
		"body":  "Automatically detected new incidents from news sources.",
		"head":  branch,
		"base":  c.cfg.BaseBranch,
	}
	var out struct {
		HTMLURL string `json:"html_url"`
	}
	path := fmt.Sprintf("/repos/%s/pulls", c.cfg.Repo)
	if err := c.do(ctx, http.MethodPost, path, body, &out, http.StatusCreated); err != nil {
		return "", err
	}
	return out.HTMLURL, nil
}

// statusError carries the HTTP status of a failed API call.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("github api returned %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// do sends one API request and decodes the JSON response into out (if
// non-nil) when the status is one of wantStatus.
func (c *Client) do(ctx context.Context, method, path string, body, out any, wantStatus ...int) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	ok := false
	for _, want := range wantStatus {
		if resp.StatusCode == want {
			ok = true
			break
		}
	}
	if !ok {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
