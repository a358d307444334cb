package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/config"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/handlers"
	"github.com/cac-scouting/scout-engine/pkg/llm"
	"github.com/cac-scouting/scout-engine/pkg/logging"
	"github.com/cac-scouting/scout-engine/pkg/metrics"
	"github.com/cac-scouting/scout-engine/pkg/middleware"
	"github.com/cac-scouting/scout-engine/pkg/render"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
	"github.com/cac-scouting/scout-engine/pkg/services"
	"github.com/cac-scouting/scout-engine/pkg/storage"
	"github.com/cac-scouting/scout-engine/pkg/templates"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.Path),
		zap.Bool("wal", cfg.Database.WAL),
		zap.Bool("summarizer", cfg.Summarizer.Enabled),
		zap.String("summarizer_url", logging.SanitizeURL(cfg.Summarizer.BaseURL)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsManager := metrics.NewManager(metrics.WithRuntimeCollectors())

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WAL:         cfg.Database.WAL,
		BusyTimeout: time.Duration(cfg.Database.BusyTimeoutMS) * time.Millisecond,
		BusyRetries: cfg.Database.BusyRetries,
		BusyBackoff: cfg.Database.BusyBackoff(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	db.SetObserver(metricsManager)

	if err := database.EnsureSchema(ctx, db, logger); err != nil {
		logger.Fatal("Failed to prepare database schema", zap.Error(err))
	}

	registry, err := templates.NewRegistry(cfg.Templates.Path, logger)
	if err != nil {
		logger.Fatal("Failed to load report templates", zap.Error(err))
	}
	if cfg.Templates.Watch {
		if err := registry.Watch(ctx); err != nil {
			logger.Warn("Template file watch disabled", zap.Error(err))
		}
	}

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	playerRepo := repositories.NewPlayerRepository(db)
	seasonRepo := repositories.NewSeasonRecordRepository(db)
	reportRepo := repositories.NewReportRepository(db, registry)
	attachmentRepo := repositories.NewAttachmentRepository(db)
	matchRepo := repositories.NewMatchRepository(db)
	exportCacheRepo := repositories.NewExportCacheRepository(db)
	filterRepo := repositories.NewFilterConfigRepository(db)

	if n, err := playerRepo.BackfillNormalizedNames(ctx); err != nil {
		logger.Fatal("Failed to backfill normalized names", zap.Error(err))
	} else if n > 0 {
		logger.Info("Backfilled normalized player names", zap.Int("count", n))
	}

	store, err := storage.New(storage.Config{
		UploadDir:      cfg.Storage.UploadDir,
		ExportDir:      cfg.Storage.ExportDir,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes(),
		ThumbnailSize:  cfg.Storage.ThumbnailSize,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to prepare storage directories", zap.Error(err))
	}

	scraperClient, err := scraper.NewClient(scraper.Config{
		BaseURL:   cfg.Scraper.BaseURL,
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second,
		CacheTTL:  time.Duration(cfg.Scraper.CacheTTLMinutes) * time.Minute,
		Retries:   cfg.Scraper.Retries,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create scraper", zap.Error(err))
	}

	var summarizer llm.Summarizer
	if cfg.Summarizer.Enabled {
		client, err := llm.NewClient(&llm.Config{
			Endpoint: cfg.Summarizer.BaseURL,
			Model:    cfg.Summarizer.Model,
			APIKey:   cfg.Summarizer.APIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create summarizer client", zap.Error(err))
		}
		summarizer = llm.NewSummarizer(client, llm.SummarizerOptions{
			MaxNoteRunes: cfg.Summarizer.MaxNoteRunes,
			Timeout:      cfg.Summarizer.Timeout(),
		}, logger)
	}

	renderer := render.NewPDFRenderer(render.Options{UploadDir: cfg.Storage.UploadDir}, logger)

	// Services
	userService := services.NewUserService(userRepo, logger)
	if seeded, err := userService.SeedAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		logger.Fatal("Failed to seed admin account", zap.Error(err))
	} else if seeded {
		logger.Info("Created initial admin account", zap.String("username", logging.SanitizeUsername(cfg.Admin.Username)))
	}

	playerService := services.NewPlayerService(services.PlayerDeps{
		Players:     playerRepo,
		Seasons:     seasonRepo,
		Reports:     reportRepo,
		Attachments: attachmentRepo,
		Scraper:     scraperClient,
		Store:       store,
		Metrics:     metricsManager,
	}, logger)
	reportService := services.NewReportService(reportRepo, attachmentRepo, store, logger)
	matchService := services.NewMatchService(matchRepo, playerService, scraperClient, metricsManager, logger)
	exportService := services.NewExportService(services.ExportDeps{
		Players:    playerRepo,
		Reports:    reportRepo,
		Seasons:    seasonRepo,
		Cache:      exportCacheRepo,
		Store:      store,
		Renderer:   renderer,
		Summarizer: summarizer,
		Metrics:    metricsManager,
	}, logger)
	filterService := services.NewFilterService(filterRepo)
	analyticsService := services.NewAnalyticsService(playerRepo, seasonRepo, logger)

	// Auth
	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret(), cfg.Auth.TokenTTL())
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}
	sessions, err := auth.NewSessionStore(cfg.SessionSecret(),
		time.Duration(cfg.Auth.SessionMaxAgeHours)*time.Hour,
		auth.DeriveCookieSettings(cfg.BaseURL, ""))
	if err != nil {
		logger.Fatal("Failed to create session store", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(issuer, sessions, logger), logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(userService, issuer, sessions, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewUsersHandler(userService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewPlayersHandler(playerService, reportService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewExportsHandler(exportService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewReportsHandler(reportService, userService, cfg.Storage.MaxUploadBytes(), logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewMatchesHandler(matchService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewTemplatesHandler(registry, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewFiltersHandler(filterService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAnalyticsHandler(analyticsService, logger).RegisterRoutes(mux, authMiddleware)
	mux.Handle("GET /metrics", metricsManager.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger, metricsManager)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting scout-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
