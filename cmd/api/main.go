package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uborka/internal/api"
	"uborka/internal/config"
	"uborka/internal/database"
	"uborka/internal/domain"
	"uborka/internal/events"
	"uborka/internal/export"
	"uborka/internal/google"
	"uborka/internal/logging"
	"uborka/internal/metrics"
	"uborka/internal/models"
	"uborka/internal/repository"
	"uborka/internal/service"
	"uborka/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	cleaners, err := loadCleaners(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, cleaners, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	locks := initLocks(redisClient, &logger)
	sheetsService := initGoogleSheets(cfg, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		w := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, log.Default())
		go w.Start(ctx)
		syncWorker = w
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	eventBus := events.NewEventBus()
	subs := service.NewSubscriptionService(
		db,
		locks,
		eventBus,
		syncWorker,
		cfg.Scheduler.MaxOccurrences,
		cfg.Scheduler.ResumeHorizonMonths,
		time.Duration(cfg.Scheduler.LockTTLSeconds)*time.Second,
		&logger,
	)
	timeoff := service.NewTimeOffService(db, eventBus, &logger)
	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	httpServer := api.NewHTTPServer(cfg.API, subs, timeoff, exporter)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadCleaners берет ростер из отдельного YAML файла, если он задан, иначе из
// основного конфига
func loadCleaners(cfg *config.Config, logger *zerolog.Logger) ([]models.Cleaner, error) {
	cleanersPath := os.Getenv("CLEANERS_PATH")
	if cleanersPath == "" {
		return cfg.Cleaners, nil
	}

	data, err := os.ReadFile(cleanersPath)
	if err != nil {
		logger.Error().Err(err).Str("cleaners_path", cleanersPath).Msg("read cleaners")
		return nil, err
	}

	var roster struct {
		Cleaners []models.Cleaner `yaml:"cleaners"`
	}
	if err := yaml.Unmarshal(data, &roster); err != nil {
		logger.Error().Err(err).Str("cleaners_path", cleanersPath).Msg("parse cleaners")
		return nil, err
	}

	return roster.Cleaners, nil
}

func initDatabase(cfg *config.Config, cleaners []models.Cleaner, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	db.SetCleaners(cleaners)
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initLocks строит цепочку advisory-блокировок: Redis с фейловером на память
func initLocks(redisClient *redis.Client, logger *zerolog.Logger) domain.LockRepository {
	memory := repository.NewMemoryLockRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverLockRepository(
		repository.NewRedisLockRepository(redisClient),
		memory,
		logger,
	)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.OccurrenceSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSimpleSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.ScheduleSpreadSheetID,
		cfg.Google.OccurrenceSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
