// Package collector gathers raw text and objective facts about a resource
// from its page and its source repository.
package collector

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resource-pipeline/internal/fetch"
	"github.com/jonathan/resource-pipeline/internal/github"
	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/throttle"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// Source names.
const (
	SourcePage       = "page"
	SourceRepository = "repository"
	SourceReadme     = "readme"
)

// Target describes where to collect from.
type Target struct {
	Slug       string
	URL        string
	Repository *types.RepositoryRef
}

// TargetFor builds a Target from a resource. A github.com URL doubles as the
// repository reference when none is stored.
func TargetFor(r *types.Resource) Target {
	target := Target{Slug: r.Slug, URL: r.URL, Repository: r.Repository}
	if target.Repository == nil {
		if owner, name, ok := github.ParseRepositoryURL(r.URL); ok {
			target.Repository = &types.RepositoryRef{Owner: owner, Name: name}
		}
	}
	return target
}

// RepoClient is the subset of the GitHub client the collector uses.
type RepoClient interface {
	Repository(ctx context.Context, owner, name string) (*github.RepoMetadata, error)
	Readme(ctx context.Context, owner, name string) (string, error)
}

// SourceError wraps a single source failure.
type SourceError struct {
	Source string
	URL    string
	Cause  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s (%s): %v", e.Source, e.URL, e.Cause)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Record converts the error to its persisted form.
func (e *SourceError) Record(at time.Time) types.SourceError {
	return types.SourceError{Source: e.Source, URL: e.URL, Message: e.Cause.Error(), OccurredAt: at}
}

// Collection is everything gathered for one resource.
type Collection struct {
	Text    string
	Facts   types.Facts
	Sources []types.SourceResult
	Errors  []types.SourceError
	// Description is the repository's own one-line summary, if available.
	Description string
}

// AllFailed reports whether no source produced anything.
func (c *Collection) AllFailed() bool {
	return !lo.SomeBy(c.Sources, func(s types.SourceResult) bool { return s.OK })
}

// Options configures a Collector.
type Options struct {
	// MaxTextLength bounds the aggregated text.
	MaxTextLength int
}

// Collector fetches all sources for a target concurrently.
type Collector struct {
	scraper  fetch.Scraper
	repos    RepoClient
	throttle *throttle.Registry
	opts     Options
	logger   *zap.Logger
}

// New creates a Collector. repos may be nil when no repository API is configured.
func New(scraper fetch.Scraper, repos RepoClient, limiter *throttle.Registry, opts Options, logger *zap.Logger) *Collector {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = fetch.DefaultMaxTextLength
	}
	return &Collector{
		scraper:  scraper,
		repos:    repos,
		throttle: limiter,
		opts:     opts,
		logger:   logging.OrNop(logger),
	}
}

type sourceOutcome struct {
	order  int
	result types.SourceResult
	text   string
	err    *SourceError
}

// Collect gathers every source. Individual failures are recorded in the
// returned Collection and never abort the other sources. The only error
// returned is context cancellation.
func (c *Collector) Collect(ctx context.Context, target Target) (*Collection, error) {
	var (
		mu       sync.Mutex
		outcomes []sourceOutcome
		meta     *github.RepoMetadata
	)
	record := func(o sourceOutcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, o)
	}

	g, gctx := errgroup.WithContext(ctx)

	if target.URL != "" && c.scraper != nil {
		g.Go(func() error {
			record(c.collectPage(gctx, target.URL))
			return nil
		})
	}

	if target.Repository != nil && c.repos != nil {
		repo := *target.Repository
		repoURL := "https://github.com/" + repo.FullName()
		g.Go(func() error {
			outcome, m := c.collectRepository(gctx, repo, repoURL)
			if m != nil {
				mu.Lock()
				meta = m
				mu.Unlock()
			}
			record(outcome)
			return nil
		})
		g.Go(func() error {
			record(c.collectReadme(gctx, repo, repoURL))
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return c.assemble(outcomes, meta), nil
}

func (c *Collector) collectPage(ctx context.Context, url string) sourceOutcome {
	outcome := sourceOutcome{order: 0, result: types.SourceResult{Name: SourcePage, URL: url}}
	if err := c.throttle.Wait(ctx, throttle.ServiceWeb); err != nil {
		outcome.err = &SourceError{Source: SourcePage, URL: url, Cause: err}
		return outcome
	}
	page, err := c.scraper.Scrape(ctx, url)
	outcome.result.FetchedAt = time.Now().UTC()
	if err != nil {
		outcome.err = &SourceError{Source: SourcePage, URL: url, Cause: err}
		return outcome
	}
	outcome.result.OK = true
	outcome.result.Backend = page.Backend
	outcome.result.Chars = len(page.Text)
	outcome.text = page.Text
	return outcome
}

func (c *Collector) collectRepository(ctx context.Context, repo types.RepositoryRef, url string) (sourceOutcome, *github.RepoMetadata) {
	outcome := sourceOutcome{order: 1, result: types.SourceResult{Name: SourceRepository, URL: url}}
	meta, err := c.repos.Repository(ctx, repo.Owner, repo.Name)
	outcome.result.FetchedAt = time.Now().UTC()
	if err != nil {
		outcome.err = &SourceError{Source: SourceRepository, URL: url, Cause: err}
		return outcome, nil
	}
	outcome.result.OK = true
	outcome.result.Backend = "api"
	return outcome, meta
}

func (c *Collector) collectReadme(ctx context.Context, repo types.RepositoryRef, url string) sourceOutcome {
	outcome := sourceOutcome{order: 2, result: types.SourceResult{Name: SourceReadme, URL: url + "#readme"}}
	readme, err := c.repos.Readme(ctx, repo.Owner, repo.Name)
	outcome.result.FetchedAt = time.Now().UTC()
	if err != nil {
		outcome.err = &SourceError{Source: SourceReadme, URL: outcome.result.URL, Cause: err}
		return outcome
	}
	readme = fetch.Truncate(strings.TrimSpace(readme), c.opts.MaxTextLength)
	outcome.result.OK = readme != ""
	outcome.result.Backend = "api"
	outcome.result.Chars = len(readme)
	if readme == "" {
		outcome.err = &SourceError{Source: SourceReadme, URL: outcome.result.URL, Cause: fetch.ErrEmptyPage}
		return outcome
	}
	outcome.text = readme
	return outcome
}

func (c *Collector) assemble(outcomes []sourceOutcome, meta *github.RepoMetadata) *Collection {
	// Goroutines finish in any order.
	sorted := slices.Clone(outcomes)
	slices.SortStableFunc(sorted, func(a, b sourceOutcome) int { return a.order - b.order })

	collection := &Collection{
		Sources: make([]types.SourceResult, 0, len(sorted)),
		Errors:  []types.SourceError{},
	}
	var sections []string
	for _, o := range sorted {
		collection.Sources = append(collection.Sources, o.result)
		if o.err != nil {
			c.logger.Warn("source failed",
				zap.String("source", o.err.Source),
				zap.String("url", o.err.URL),
				zap.Error(o.err.Cause))
			collection.Errors = append(collection.Errors, o.err.Record(o.result.FetchedAt))
			continue
		}
		if o.text != "" {
			sections = append(sections, fmt.Sprintf("## Source: %s\n%s", o.result.Name, o.text))
		}
	}
	collection.Text = fetch.Truncate(strings.Join(sections, "\n\n"), c.opts.MaxTextLength)

	if meta != nil {
		collection.Facts = factsFromMetadata(meta)
		collection.Description = meta.Description
	}
	return collection
}

func factsFromMetadata(meta *github.RepoMetadata) types.Facts {
	stars, forks, issues, archived := meta.Stars, meta.Forks, meta.OpenIssues, meta.Archived
	return types.Facts{
		Stars:      &stars,
		Forks:      &forks,
		OpenIssues: &issues,
		Language:   meta.Language,
		License:    meta.License,
		LastPush:   meta.PushedAt,
		Topics:     meta.Topics,
		Archived:   &archived,
	}
}
