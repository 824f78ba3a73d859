package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/catalog"
	"github.com/opencurate/curation-engine/pkg/config"
	"github.com/opencurate/curation-engine/pkg/database"
	"github.com/opencurate/curation-engine/pkg/handlers"
	"github.com/opencurate/curation-engine/pkg/logging"
	"github.com/opencurate/curation-engine/pkg/metrics"
	"github.com/opencurate/curation-engine/pkg/middleware"
	"github.com/opencurate/curation-engine/pkg/repositories"
	"github.com/opencurate/curation-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "curation-engine",
		Short:         "Weighted consensus engine for community-curated project facts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), migrateCmd(), recomputeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Serve()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer sqlDB.Close()

			return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
		},
	}
}

func recomputeCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild field states and rank snapshots from the leadership log",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if projectID != "" {
				id, err := uuid.Parse(projectID)
				if err != nil {
					return fmt.Errorf("invalid project id %q: %w", projectID, err)
				}

				snapshot, err := app.Recompute.RecomputeProject(cmd.Context(), id)
				if err != nil {
					return err
				}

				app.Logger.Info("Recompute complete",
					zap.String("project_id", id.String()),
					zap.Int64("published_genesis_weight", snapshot.PublishedGenesisWeight))
				return nil
			}

			rebuilt, err := app.Recompute.RecomputeAll(cmd.Context())
			if err != nil {
				return err
			}

			app.Logger.Info("Recompute complete", zap.Int("rebuilt", rebuilt))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "recompute a single project instead of all")
	return cmd
}

// app holds the wired application graph.
type app struct {
	Cfg       *config.Config
	Logger    *zap.Logger
	DB        *database.DB
	Registry  *prometheus.Registry
	Proposals services.ProposalService
	Votes     services.VoteService
	Weights   services.WeightService
	Ranks     services.RankService
	Recompute services.RecomputeService
	Leads     services.ResolutionService
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}

func newApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("catalog", cfg.Catalog),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open migration connection: %w", err)
	}
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		_ = sqlDB.Close()
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	_ = sqlDB.Close()

	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load field catalog: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	candidateRepo := repositories.NewCandidateRepository()
	voteRepo := repositories.NewVoteRepository()
	leadershipRepo := repositories.NewLeadershipRepository()
	weightRepo := repositories.NewWeightRepository()
	projectRepo := repositories.NewProjectRepository()
	rankRepo := repositories.NewRankRepository()

	weightSvc := services.NewWeightService(weightRepo, voteRepo, logger)
	rewardSvc := services.NewRewardService(candidateRepo, leadershipRepo, weightRepo, cat, m, logger)
	rankSvc := services.NewRankService(projectRepo, rankRepo, cat, logger)
	resolutionSvc := services.NewResolutionService(
		voteRepo, candidateRepo, leadershipRepo, projectRepo,
		rewardSvc, rankSvc, services.NewLogNotificationSink(logger), cat, m, logger)
	proposalSvc := services.NewProposalService(db, candidateRepo, projectRepo, cat, m, logger)
	voteSvc := services.NewVoteService(
		db, voteRepo, candidateRepo, projectRepo,
		weightSvc, resolutionSvc, services.NewLogActivitySink(logger), m, logger)
	recomputeSvc := services.NewRecomputeService(
		db, candidateRepo, voteRepo, leadershipRepo, projectRepo,
		rankSvc, cat, m, logger)

	return &app{
		Cfg:       cfg,
		Logger:    logger,
		DB:        db,
		Registry:  registry,
		Proposals: proposalSvc,
		Votes:     voteSvc,
		Weights:   weightSvc,
		Ranks:     rankSvc,
		Recompute: recomputeSvc,
		Leads:     resolutionSvc,
	}, nil
}

// Serve builds the HTTP mux and blocks serving it.
func (a *app) Serve() error {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(a.Cfg, a.Logger).RegisterRoutes(mux)
	handlers.NewCurationHandler(a.Proposals, a.Votes, a.Leads, a.Logger).RegisterRoutes(mux)
	handlers.NewRankHandler(a.Ranks, a.Recompute, a.Logger).RegisterRoutes(mux)
	handlers.NewWeightHandler(a.Weights, a.Logger).RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	handler := middleware.RequestLogger(a.Logger)(
		middleware.DatabaseScope(a.DB, a.Logger)(mux))

	addr := a.Cfg.BindAddr + ":" + a.Cfg.Port
	a.Logger.Info("Starting curation-engine",
		zap.String("addr", addr),
		zap.String("version", a.Cfg.Version))

	return http.ListenAndServe(addr, handler)
}

// Close releases the application's resources.
func (a *app) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
