package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studiorent/internal/api"
	"studiorent/internal/blocks"
	"studiorent/internal/config"
	"studiorent/internal/db"
	"studiorent/internal/events"
	"studiorent/internal/metrics"
	"studiorent/internal/search"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	configPath := os.Getenv("STUDIORENT_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	}

	database, err := db.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	var locker blocks.Locker
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis not reachable; room locks will fail until it is")
		}
		cancel()
		locker = blocks.NewRedisLocker(rdb, cfg.LockTTL(), 0, 0)
	}

	bus := events.NewBus()
	cache := api.NewCalendarCache(rdb, cfg.CacheTTL(), logger)
	cache.Subscribe(bus)

	err = config.WatchStudios(ctx, cfg.Studios.ConfigPath, cfg.StudiosReloadInterval(), logger, func(sc *config.StudiosConfig) {
		syncCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := syncStudios(syncCtx, database, bus, sc, logger); err != nil {
			logger.Error().Err(err).Msg("Failed to sync studios config")
			return
		}
		logger.Info().Int("studios", len(sc.Studios)).Msg("Studios synced")
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("load studios config")
	}

	blockSvc := blocks.NewService(database, locker, bus, logger)
	finder := search.NewFinder(database, logger)

	if cfg.Backup.Enabled {
		backups := db.NewBackupService(database, db.BackupOptions{
			Enabled:       true,
			Interval:      cfg.BackupInterval(),
			Dir:           cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, logger)
		go backups.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go serve(ctx, "health", cfg.Monitoring.HealthCheckPort, healthHandler(ctx, database, rdb), &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go serve(ctx, "metrics", cfg.Monitoring.PrometheusPort, metricsHandler(), &logger)
	}

	srv := api.NewHTTPServer(database, blockSvc, finder, cache, bus, api.Options{
		Port:              cfg.Server.Port,
		APIKey:            cfg.Server.APIKey,
		MaxRange:          cfg.MaxCalendarRange(),
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("studiorent stopped")
}

// syncStudios applies studios.yaml and announces every stored studio,
// including ones the file just deactivated, so cached calendars are dropped.
func syncStudios(ctx context.Context, database *db.DB, bus *events.Bus, sc *config.StudiosConfig, logger zerolog.Logger) error {
	if err := database.SyncStudiosFromConfig(ctx, sc); err != nil {
		return err
	}
	studios, err := database.ListStudios(ctx, db.StudioFilter{})
	if err != nil {
		return err
	}
	for i := range studios {
		id := studios[i].Studio.ID
		if err := bus.Publish(events.Event{Type: events.StudioSynced, StudioID: id}); err != nil {
			logger.Warn().Err(err).Str("studio_id", id).Msg("Event handler failed")
		}
	}
	return nil
}

func healthHandler(ctx context.Context, database *db.DB, rdb *redis.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// serve runs an auxiliary server until ctx is cancelled.
func serve(ctx context.Context, name string, port int, handler http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Str("server", name).Int("port", port).Msg("Auxiliary server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
