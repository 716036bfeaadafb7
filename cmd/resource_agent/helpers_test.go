package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/types"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resources.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadResources_DerivesRepositoryFromURL(t *testing.T) {
	path := writeSeed(t, `[
		{"slug": "widget", "title": "Widget", "url": "https://github.com/acme/widget", "description": "A widget."},
		{"slug": "docs-site", "title": "Docs", "url": "https://docs.example.com"}
	]`)

	resources, err := loadResources(path)
	require.NoError(t, err)
	require.Len(t, resources, 2)

	require.NotNil(t, resources[0].Repository)
	assert.Equal(t, "acme/widget", resources[0].Repository.FullName())
	assert.Nil(t, resources[1].Repository)
}

func TestLoadResources_RequiresSlug(t *testing.T) {
	path := writeSeed(t, `[{"title": "No slug"}]`)

	_, err := loadResources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no slug")
}

func TestLoadResources_InvalidJSON(t *testing.T) {
	path := writeSeed(t, `{not json`)

	_, err := loadResources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse resources JSON")
}

func TestSeedStore(t *testing.T) {
	path := writeSeed(t, `[{"slug": "widget", "title": "Widget", "url": "https://github.com/acme/widget", "description": "A widget."}]`)

	store, err := seedStore(context.Background(), path)
	require.NoError(t, err)

	r, err := store.GetResourceBySlug(context.Background(), "widget")
	require.NoError(t, err)
	assert.Equal(t, "Widget", r.Title)
	assert.Equal(t, types.ComputeContentHash("A widget.", ""), r.ContentHash)
}

func TestSplitFields(t *testing.T) {
	got := splitFields([]string{"stars, forks", "description", "stars", " ", ""})
	assert.Equal(t, []string{"stars", "forks", "description"}, got)
	assert.Empty(t, splitFields(nil))
}

func TestParseStatuses(t *testing.T) {
	statuses, err := parseStatuses([]string{"ready_for_review", " failed "})
	require.NoError(t, err)
	assert.Equal(t, []types.JobStatus{types.StatusReadyForReview, types.StatusFailed}, statuses)

	_, err = parseStatuses([]string{"done"})
	assert.Error(t, err)
}

func TestParseJobID(t *testing.T) {
	id, err := parseJobID(" 3f1b2c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d ")
	require.NoError(t, err)
	assert.Equal(t, "3f1b2c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d", id.String())

	_, err = parseJobID("not-a-uuid")
	assert.Error(t, err)
}

func TestCLICaller(t *testing.T) {
	t.Setenv("USER", "")
	assert.Equal(t, types.Caller{ID: "cli", Role: auth.RoleAdmin}, cliCaller(""))

	t.Setenv("USER", "ops")
	assert.Equal(t, "ops", cliCaller("").ID)
	assert.Equal(t, "alice", cliCaller("alice").ID)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/catalog", redactURL("postgres://app:secret@db:5432/catalog"))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database_url": "postgres://file", "threshold": 0.8}`), 0o644))

	configPath, databaseURL, verbose = path, "postgres://flag", true
	t.Cleanup(func() { configPath, databaseURL, verbose = "", "", false })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag", cfg.DatabaseURL)
	assert.InDelta(t, 0.8, cfg.Threshold, 1e-9)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 4, cfg.Parallelism)
}
