package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"voeventdb/internal/cache"
	"voeventdb/internal/config"
	"voeventdb/internal/ingest"
	"voeventdb/internal/metrics"
	"voeventdb/internal/query"
	"voeventdb/internal/repository"
	"voeventdb/internal/service"
	"voeventdb/pkg/database"
	redispkg "voeventdb/pkg/redis"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const Version = "1.3"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "voeventdb",
		Short: "Archive and query VOEvent packets",
		Long: `voeventdb stores VOEvent packets in PostgreSQL and serves them over a
filtered, paginated REST API. Packets arrive from tar archives, single
files, an inbox directory or a NATS subject.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load")

	cmd.AddCommand(
		serveCmd(),
		createCmd(),
		ingestArchiveCmd(),
		ingestPacketCmd(),
		dumpCmd(),
		generateCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("voeventdb interface version %s\n", Version)
			},
		},
	)
	return cmd
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// app holds the connections and services shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	redis   *redis.Client
	metrics *metrics.Metrics

	packets repository.PacketRepository
	runs    repository.IngestRunRepository
	query   service.QueryService
	ingest  service.IngestService
	export  service.ExportService
}

func openApp(ctx context.Context, withMetrics bool) (*app, error) {
	cfg := config.Load()
	a := &app{cfg: cfg, logger: newLogger(cfg.App.Debug)}
	if withMetrics && cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	db, err := database.Connect(database.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.DBName,
		SSLMode:  cfg.DB.SSLMode,
		Debug:    cfg.App.Debug,
	})
	if err != nil {
		return nil, err
	}
	a.db = db

	resultCache := cache.Noop()
	if cfg.Redis.Enabled {
		client, err := redispkg.Connect(ctx, redispkg.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		resultCache = cache.NewRedisCache(client, cfg.Redis.TTL)
	}

	a.packets = repository.NewPacketRepository(db)
	a.runs = repository.NewIngestRunRepository(db)
	queries := repository.NewQueryRepository(db, query.DefaultRegistry())

	limits := query.Limits{Default: cfg.Query.DefaultLimit, Max: cfg.Query.MaxLimit}
	engine := ingest.NewEngine(a.packets, a.runs, a.logger)
	a.query = service.NewQueryService(queries, a.packets, resultCache, a.metrics, limits, a.logger)
	a.ingest = service.NewIngestService(engine, a.runs, resultCache, a.metrics, a.logger)
	a.export = service.NewExportService(a.query, a.packets, a.logger)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
