package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/analyzer"
	"github.com/jonathan/resource-pipeline/internal/apply"
	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/collector"
	"github.com/jonathan/resource-pipeline/internal/config"
	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/diff"
	"github.com/jonathan/resource-pipeline/internal/fetch"
	"github.com/jonathan/resource-pipeline/internal/github"
	"github.com/jonathan/resource-pipeline/internal/llm"
	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/review"
	"github.com/jonathan/resource-pipeline/internal/throttle"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// loadConfig merges the config file, environment and defaults, then applies
// persistent flag overrides.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if verbose {
		cfg.Verbose = true
	}
	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app holds the wired services for one CLI invocation.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   db.Store
	orch    *pipeline.Orchestrator
	review  *review.Service
	llm     llm.Client
	pinger  interface{ Ping(context.Context) error }
	closers []func()
}

type appOptions struct {
	// store replaces the database store, e.g. an in-memory dry run.
	store db.Store
	// pipeline wires the collector and analyzer; not needed for reviewer-only commands.
	pipeline   bool
	authz      auth.Authorizer
	onProgress pipeline.ProgressCallback
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	a.store = opts.store
	if a.store == nil {
		if cfg.DatabaseURL == "" {
			a.Close()
			return nil, fmt.Errorf("DATABASE_URL (or --db-url) is required")
		}
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		a.store = database
		a.pinger = database
	}

	authz := opts.authz
	if authz == nil {
		authz = auth.AllowAll{}
	}
	applier := apply.New(a.store, logger)
	a.review = review.NewService(a.store, applier, authz, logger)

	var (
		coll     pipeline.Collector
		an       pipeline.Analyzer
		capturer fetch.Capturer
	)
	if opts.pipeline {
		if cfg.APIKey == "" {
			a.Close()
			return nil, fmt.Errorf("an API key for %s is required (api_key, GEMINI_API_KEY or OPENAI_API_KEY)", cfg.LLMProvider)
		}
		llmCfg := llm.ConfigFor(cfg.LLMProvider)
		if cfg.LLMModel != "" {
			llmCfg = llmCfg.WithModel(llm.TierStandard, cfg.LLMModel)
		}
		llmCfg.BaseURL = cfg.LLMBaseURL
		client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.llm = client
		a.closers = append(a.closers, func() { _ = client.Close() })

		limiter := throttle.NewRegistry(cfg.DelayDurations())
		transport := logging.HTTPTransport(logger, nil)

		fetchOpts := fetch.DefaultOptions()
		fetchOpts.Transport = transport
		var scraper fetch.Scraper = fetch.NewPlainScraper(fetchOpts, cfg.MaxTextLength)
		var browser *fetch.Browser
		if cfg.UseBrowser || cfg.ScreenshotDir != "" {
			browser = fetch.NewBrowser(fetch.DefaultBrowserOptions(), logger)
		}
		if cfg.UseBrowser {
			scraper = &fetch.FallbackScraper{
				Primary:  fetch.NewBrowserScraper(browser, cfg.MaxTextLength),
				Fallback: scraper,
				Logger:   logger,
			}
		}
		if cfg.ScreenshotDir != "" {
			capturer = fetch.NewFileCapturer(browser, cfg.ScreenshotDir, limiter)
		}

		repos := github.NewClient(cfg.GitHubToken, &http.Client{Timeout: 30 * time.Second, Transport: transport}, limiter)
		coll = collector.New(scraper, repos, limiter, collector.Options{MaxTextLength: cfg.MaxTextLength}, logger)
		an = analyzer.New(client, limiter, analyzer.Options{MaxInputChars: cfg.MaxInputChars}, logger)
	}

	engine := &diff.Engine{Threshold: cfg.Threshold, BreakingBelow: cfg.BreakingBelow}
	a.orch = pipeline.New(a.store, coll, an, engine, capturer, applier, pipeline.Options{
		Threshold:       cfg.Threshold,
		MinContentChars: cfg.MinContentChars,
		OnProgress:      opts.onProgress,
	}, logger)
	return a, nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadResources reads a JSON array of resources.
func loadResources(path string) ([]types.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var resources []types.Resource
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("failed to parse resources JSON: %w", err)
	}
	for i := range resources {
		r := &resources[i]
		if r.Slug == "" {
			return nil, fmt.Errorf("resource %d has no slug", i)
		}
		if r.Repository == nil && r.URL != "" {
			if owner, name, ok := github.ParseRepositoryURL(r.URL); ok {
				r.Repository = &types.RepositoryRef{Owner: owner, Name: name}
			}
		}
	}
	return resources, nil
}

// cliCaller identifies the operator for reviewer actions run from the CLI.
func cliCaller(actor string) types.Caller {
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		actor = "cli"
	}
	return types.Caller{ID: actor, Role: auth.RoleAdmin}
}
