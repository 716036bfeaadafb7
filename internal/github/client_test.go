package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resource-pipeline/internal/throttle"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(token, server.Client(), throttle.Unlimited())
	client.BaseURL = server.URL
	return client
}

func TestRepository_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widget", r.URL.Path)
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"full_name": "acme/widget",
			"description": "Terminal charts",
			"homepage": "https://widget.dev",
			"stargazers_count": 150,
			"forks_count": 12,
			"open_issues_count": 3,
			"pushed_at": "2026-09-01T10:00:00Z",
			"language": "Go",
			"topics": ["cli", "charts"],
			"archived": false,
			"license": {"spdx_id": "MIT", "name": "MIT License"}
		}`))
	}, "")

	meta, err := client.Repository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, "acme/widget", meta.FullName)
	assert.Equal(t, 150, meta.Stars)
	assert.Equal(t, 12, meta.Forks)
	assert.Equal(t, 3, meta.OpenIssues)
	assert.Equal(t, "Go", meta.Language)
	assert.Equal(t, "MIT", meta.License)
	assert.Equal(t, []string{"cli", "charts"}, meta.Topics)
	require.NotNil(t, meta.PushedAt)
	assert.True(t, meta.PushedAt.Equal(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))
}

func TestRepository_LicenseFallsBackToName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"license": {"spdx_id": "NOASSERTION", "name": "Custom License"}}`))
	}, "")

	meta, err := client.Repository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, "Custom License", meta.License)
	assert.Nil(t, meta.PushedAt)
}

func TestRepository_SendsToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}, "secret")

	_, err := client.Repository(context.Background(), "acme", "widget")
	require.NoError(t, err)
}

func TestRepository_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	}, "")

	_, err := client.Repository(context.Background(), "acme", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestRepository_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "API rate limit exceeded"}`))
	}, "")

	_, err := client.Repository(context.Background(), "acme", "widget")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestReadme(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widget/readme", r.URL.Path)
		assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
		_, _ = w.Write([]byte("# Widget\n\nCharts in your terminal."))
	}, "")

	readme, err := client.Readme(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Contains(t, readme, "Charts in your terminal.")
}

func TestParseRepositoryURL(t *testing.T) {
	tests := []struct {
		raw   string
		owner string
		name  string
		ok    bool
	}{
		{"https://github.com/acme/widget", "acme", "widget", true},
		{"https://github.com/acme/widget.git", "acme", "widget", true},
		{"https://github.com/acme/widget/tree/main/docs", "acme", "widget", true},
		{"git+https://github.com/acme/widget.git", "acme", "widget", true},
		{"git@github.com:acme/widget.git", "acme", "widget", true},
		{"https://www.github.com/acme/widget/", "acme", "widget", true},
		{"https://github.com/acme", "", "", false},
		{"https://gitlab.com/acme/widget", "", "", false},
		{"not a url", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			owner, name, ok := ParseRepositoryURL(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.name, name)
		})
	}
}
