package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/config"
	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/server"
	"github.com/jonathan/resource-pipeline/internal/server/ratelimit"
)

var (
	servePort      int
	serveSchedule  bool
	serveAutoApply bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the HTTP API for reviewers and operators.

Endpoints (all except /health require a bearer token, see 'token'):
  GET  /health                       Health check
  GET  /resources/{slug}             Current resource entry
  GET  /resources/{slug}/changelog   Applied change history
  POST /resources/{slug}/jobs        Create (and optionally run) an update job
  GET  /jobs                         List jobs, filter with ?resource=&status=&limit=
  GET  /jobs/{id}                    Job details and proposed changes
  GET  /jobs/{id}/events             Progress stream (SSE)
  POST /jobs/{id}/run                Run a pending job in the background
  POST /jobs/{id}/approve            Apply selected fields
  POST /jobs/{id}/reject             Close without applying

With --schedule, stale resources are refreshed periodically.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, 8080)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "Periodically refresh stale resources")
	serveCmd.Flags().BoolVar(&serveAutoApply, "auto-apply", false, "Scheduled jobs apply high-confidence metric changes without review")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to load JWT config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := server.NewProgressHub()
	a, err := newApp(ctx, cfg, appOptions{
		pipeline:   true,
		authz:      auth.RoleAuthorizer{},
		onProgress: hub.Publish,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	// Runs owned by a previous process never finish; free their resources.
	if _, err := a.orch.FailStale(ctx, cfg.AbandonAfterDuration()); err != nil {
		a.logger.Warn("failed to sweep abandoned jobs", zap.Error(err))
	}

	srv, err := server.New(server.Config{
		Port:      cfg.Port,
		JWT:       jwtCfg,
		RateLimit: ratelimit.LoadConfig(),
	}, server.Deps{
		Store:        a.store,
		Orchestrator: a.orch,
		Review:       a.review,
		Authorizer:   auth.RoleAuthorizer{},
		Progress:     hub,
		Pinger:       a.pinger,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	if serveSchedule {
		scheduler := pipeline.NewScheduler(a.orch, pipeline.SchedulerOptions{
			Interval:    cfg.ScheduleIntervalDuration(),
			StaleAfter:  cfg.StaleAfterDuration(),
			BatchSize:   cfg.BatchSize,
			Parallelism: cfg.Parallelism,
			AutoApply:   serveAutoApply,
		}, a.logger)
		done := make(chan struct{})
		go func() {
			defer close(done)
			scheduler.Start(ctx)
		}()
		defer func() { <-done }()
		a.logger.Info("scheduler started",
			zap.Duration("interval", cfg.ScheduleIntervalDuration()),
			zap.Duration("stale_after", cfg.StaleAfterDuration()),
		)
	}

	a.logger.Info("starting server", zap.Int("port", cfg.Port))
	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
