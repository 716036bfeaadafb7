package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/observability"
	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/types"
)

var (
	refreshStaleAfter string
	refreshParallel   int
	refreshAutoApply  bool
	refreshLimit      int
	refreshSeed       string
	refreshActor      string
	refreshManual     bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [slug...]",
	Short: "Run update jobs for resources",
	Long: `Creates and runs one update job per resource. With no slugs, every resource
that was never verified or was last verified longer ago than --stale-after is
refreshed.

Jobs finish in ready_for_review unless --auto-apply is set, in which case
objective high-confidence changes are applied immediately.

--seed loads resources from a JSON file into an in-memory store instead of
using the database, which is useful for trying a configuration.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshStaleAfter, "stale-after", "", "Age after which a resource is stale (default from config, 168h)")
	refreshCmd.Flags().IntVar(&refreshParallel, "parallel", 0, "Maximum concurrent jobs (default from config, 4)")
	refreshCmd.Flags().BoolVar(&refreshAutoApply, "auto-apply", false, "Apply objective high-confidence changes without review")
	refreshCmd.Flags().IntVar(&refreshLimit, "limit", 0, "Maximum stale resources to refresh (0 uses batch_size)")
	refreshCmd.Flags().StringVar(&refreshSeed, "seed", "", "Path to a resources JSON file for an in-memory dry run")
	refreshCmd.Flags().StringVar(&refreshActor, "actor", "", "Actor recorded on the jobs")
	refreshCmd.Flags().BoolVar(&refreshManual, "manual", false, "Record jobs as manually triggered")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("stale-after") {
		cfg.StaleAfter = refreshStaleAfter
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallelism = refreshParallel
	}
	if cmd.Flags().Changed("limit") {
		cfg.BatchSize = refreshLimit
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := appOptions{pipeline: true, onProgress: printProgress}
	if refreshSeed != "" {
		store, err := seedStore(ctx, refreshSeed)
		if err != nil {
			return err
		}
		opts.store = store
	}

	a, err := newApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.orch.FailStale(ctx, cfg.AbandonAfterDuration()); err != nil {
		return err
	}

	slugs := args
	if len(slugs) == 0 {
		slugs, err = a.orch.StaleSlugs(ctx, cfg.StaleAfterDuration(), cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(slugs) == 0 {
			_, _ = fmt.Fprintln(os.Stdout, "No stale resources.")
			return nil
		}
	}

	trigger := types.TriggerScheduled
	var actor *string
	if refreshManual || refreshActor != "" {
		trigger = types.TriggerManual
		caller := cliCaller(refreshActor)
		actor = &caller.ID
	}

	result, err := a.orch.RunBatch(ctx, pipeline.BatchOptions{
		Slugs:       slugs,
		Trigger:     trigger,
		Actor:       actor,
		Parallelism: cfg.Parallelism,
		AutoApply:   refreshAutoApply,
	})
	if result != nil {
		observability.NewPrinter(os.Stdout).PrintBatch(result)
	}
	if errors.Is(err, context.Canceled) && result != nil {
		return fmt.Errorf("refresh interrupted: %d job(s) not started", result.Skipped())
	}
	return err
}

// seedStore loads resources into a fresh in-memory store.
func seedStore(ctx context.Context, path string) (*db.MemoryStore, error) {
	resources, err := loadResources(path)
	if err != nil {
		return nil, err
	}
	store := db.NewMemoryStore()
	for i := range resources {
		if err := store.UpsertResource(ctx, &resources[i]); err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", resources[i].Slug, err)
		}
	}
	return store, nil
}

func printProgress(event pipeline.ProgressEvent) {
	observability.NewPrinter(os.Stdout).PrintProgress(event)
}
