package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"voeventdb/internal/handlers"
	"voeventdb/internal/worker"
	redispkg "voeventdb/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the enabled ingest workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	scheduler := worker.NewScheduler(logger)
	if cfg.Ingest.InboxEnabled {
		scheduler.AddWorker(worker.NewInboxWorker(a.ingest, worker.InboxConfig{
			Dir:              cfg.Ingest.InboxDir,
			Interval:         cfg.Ingest.InboxInterval,
			PacketsPerCommit: cfg.Ingest.PacketsPerCommit,
		}, logger))
	}
	if cfg.NATS.Enabled {
		scheduler.AddWorker(worker.NewNATSWorker(a.ingest, worker.NATSConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.QueueGroup,
		}, logger))
	}
	scheduler.Start()
	defer scheduler.Stop()

	system := handlers.NewSystemHandler(a.query, logger).
		AddCheck("database", func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}).
		AddStats("workers", func(context.Context) (interface{}, error) {
			return gin.H{
				"running":       scheduler.Names(),
				"inbox_enabled": cfg.Ingest.InboxEnabled,
				"nats_enabled":  cfg.NATS.Enabled,
			}, nil
		}).
		AddStats("ingest_runs", func(ctx context.Context) (interface{}, error) {
			return a.ingest.RecentRuns(ctx, 5)
		})
	if a.redis != nil {
		system.
			AddCheck("redis", func(ctx context.Context) error {
				return a.redis.Ping(ctx).Err()
			}).
			AddStats("redis", func(ctx context.Context) (interface{}, error) {
				return redispkg.GetStats(ctx, a.redis)
			})
	}

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
		logger.Debug("running in debug mode")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Version:        Version,
		Debug:          cfg.App.Debug,
		FrontendURL:    cfg.App.FrontendURL,
		HTTPIngest:     cfg.App.HTTPIngestEnabled,
		RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: cfg.RateLimit.Burst,
	}, handlers.Deps{
		Query:   a.query,
		Ingest:  a.ingest,
		Export:  a.export,
		System:  system,
		Metrics: a.metrics,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "api", handlers.APIPrefix)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited properly")
	return nil
}

