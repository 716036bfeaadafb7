// Package github reads repository metadata and READMEs from the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/resource-pipeline/internal/throttle"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// ErrNotFound is returned when the repository or README does not exist.
var ErrNotFound = errors.New("github: not found")

// RepoMetadata is the subset of repository fields the pipeline tracks.
type RepoMetadata struct {
	FullName    string
	Description string
	Homepage    string
	Stars       int
	Forks       int
	OpenIssues  int
	PushedAt    *time.Time
	Language    string
	License     string
	Topics      []string
	Archived    bool
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github API %s: status %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github API %s: status %d", e.Path, e.StatusCode)
}

// Unwrap maps 404 responses to ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client is a minimal GitHub REST client. A zero Token means anonymous access.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Throttle   *throttle.Registry
}

// NewClient creates a client with the default base URL.
func NewClient(token string, httpClient *http.Client, limiter *throttle.Registry) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		BaseURL:    DefaultBaseURL,
		Token:      token,
		HTTPClient: httpClient,
		Throttle:   limiter,
	}
}

type repoResponse struct {
	FullName        string     `json:"full_name"`
	Description     string     `json:"description"`
	Homepage        string     `json:"homepage"`
	StargazersCount int        `json:"stargazers_count"`
	ForksCount      int        `json:"forks_count"`
	OpenIssuesCount int        `json:"open_issues_count"`
	PushedAt        *time.Time `json:"pushed_at"`
	Language        string     `json:"language"`
	Topics          []string   `json:"topics"`
	Archived        bool       `json:"archived"`
	License         *struct {
		SPDXID string `json:"spdx_id"`
		Name   string `json:"name"`
	} `json:"license"`
}

// Repository fetches metadata for owner/name.
func (c *Client) Repository(ctx context.Context, owner, name string) (*RepoMetadata, error) {
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))
	body, err := c.get(ctx, path, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var resp repoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode repository %s/%s: %w", owner, name, err)
	}

	meta := &RepoMetadata{
		FullName:    resp.FullName,
		Description: resp.Description,
		Homepage:    resp.Homepage,
		Stars:       resp.StargazersCount,
		Forks:       resp.ForksCount,
		OpenIssues:  resp.OpenIssuesCount,
		Language:    resp.Language,
		Topics:      resp.Topics,
		Archived:    resp.Archived,
	}
	if resp.PushedAt != nil {
		pushed := resp.PushedAt.UTC()
		meta.PushedAt = &pushed
	}
	if resp.License != nil {
		meta.License = resp.License.SPDXID
		if meta.License == "" || meta.License == "NOASSERTION" {
			meta.License = resp.License.Name
		}
	}
	return meta, nil
}

// Readme fetches the raw README text for owner/name.
func (c *Client) Readme(ctx context.Context, owner, name string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/readme", url.PathEscape(owner), url.PathEscape(name))
	body, err := c.get(ctx, path, "application/vnd.github.raw")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, path, accept string) ([]byte, error) {
	if err := c.Throttle.Wait(ctx, throttle.ServiceGitHub); err != nil {
		return nil, err
	}

	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read github response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Path: path}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return nil, apiErr
	}
	return body, nil
}

// ParseRepositoryURL extracts owner and name from a github.com URL.
// It accepts clone URLs (with .git suffix) and deep links into the repository.
func ParseRepositoryURL(raw string) (owner, name string, ok bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "git+")
	if strings.HasPrefix(raw, "git@github.com:") {
		raw = "https://github.com/" + strings.TrimPrefix(raw, "git@github.com:")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
