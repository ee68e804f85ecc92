// Package main - точка входа HTTP-сервиса площадки наставничества.
//
// Сервис принимает заявки учеников на программы мастеров, проводит их по
// жизненному циклу PENDING -> APPROVED|REJECTED -> COMPLETED и хранит
// еженедельные отчёты о прогрессе.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: репозитории, кеши, события, авторизация
// - Interface: HTTP API
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/config"

	// Application layer
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/application/command"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/application/query"

	// Infrastructure layer
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/auth"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/messaging"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/metrics"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/redis"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/seed"

	// Interface layer
	httpserver "github.com/Miku-Miku-Beam/heritage-core-sub000/internal/interface/http"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/interface/http/handlers"

	// Packages
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	flags := cfg.Features

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	out, err := logger.FileOutput(logger.FileOptions{
		Path:       cfg.Observability.LogFile,
		MaxSizeMB:  cfg.Observability.LogFileMaxSizeMB,
		MaxBackups: cfg.Observability.LogFileMaxBackups,
		MaxAgeDays: cfg.Observability.LogFileMaxAgeDays,
		Compress:   true,
	}, cfg.IsDevelopment())
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Output:    out,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("service", cfg.App.Name), logger.String("version", cfg.App.Version))
	eventLog := setupEventLogger(cfg, out)

	log.Info("starting mentorship service",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("storage", cfg.Storage.Driver),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("features", flags.String()),
	)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	m := metrics.New(cfg.App.Name)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()
	if store.health != nil {
		health.AddCheck("postgres", store.health)
	}

	if cfg.Storage.SeedFile != "" {
		f, err := seed.Load(cfg.Storage.SeedFile)
		if err != nil {
			return err
		}
		res, err := f.Apply(ctx, store.seedTarget)
		if err != nil {
			return err
		}
		log.Info("directory seeded", logger.Int("users", res.Users), logger.Int("programs", res.Programs))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		cache, err = redis.Connect(ctx, &goredis.Options{
			Addr:         net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, caching and fan-out disabled", logger.Err(err))
			cache = nil
		} else {
			defer cache.Close()
			health.AddOptionalCheck("redis", handlers.PingCheck(cache))
			log.Info("redis connection established")
		}
	}

	var (
		countsCache *redis.DashboardCache
		revoked     auth.RevocationChecker
	)
	if cache != nil {
		revoked = redis.NewTokenBlacklist(cache)
		if flags.Enabled(config.FeatureDashboardCache) {
			countsCache = redis.NewDashboardCache(cache)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus, local, err := openEventBus(cfg, cache, eventLog)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	if err := m.WatchEventBus(local.Stats); err != nil {
		return err
	}
	if err := bus.SubscribeAll(m.EventHandler()); err != nil {
		return err
	}

	if cfg.Kafka.Enabled && flags.Enabled(config.FeatureEventForwarding) {
		forwarder := messaging.NewKafkaForwarder(messaging.NewKafkaWriter(messaging.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}), eventLog)
		defer forwarder.Close()

		if err := bus.SubscribeAll(forwarder.Handler()); err != nil {
			return err
		}
		if err := m.WatchForwarder(forwarder.Stats); err != nil {
			return err
		}
		health.AddOptionalCheck("kafka", messaging.BrokerCheck(cfg.Kafka.Brokers))
		log.Info("event forwarding enabled", logger.String("topic", cfg.Kafka.Topic))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	progress := query.NewProgressCalculator(store.reports, cfg.Progress.TotalWeeks)

	var dashboard *query.ArtisanDashboardHandler
	if countsCache != nil {
		dashboard = query.NewArtisanDashboardHandler(store.apps, countsCache)
		invalidate := dashboard.InvalidateOn()
		for _, t := range applicationEventTypes {
			if err := bus.Subscribe(t, invalidate); err != nil {
				return err
			}
		}
	} else {
		dashboard = query.NewArtisanDashboardHandler(store.apps, nil)
	}

	policy := command.ReportPolicy{
		EditableAfterCompletion: flags.Enabled(config.FeatureReportsEditableAfterCompletion),
	}

	resolver, err := auth.NewJWTResolver(auth.JWTConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		Leeway: cfg.Auth.Leeway,
	}, revoked)
	if err != nil {
		return err
	}

	deps := httpserver.Dependencies{
		SubmitApplication: command.NewSubmitApplicationHandler(store.apps, store.directory, bus),
		DecideApplication: command.NewDecideApplicationHandler(store.apps, store.directory, bus),
		Reports:           command.NewReportHandler(store.apps, store.reports, bus, policy),
		GetApplication:    query.NewGetApplicationHandler(store.apps, store.reports, store.directory, progress),
		ListApplications:  query.NewListApplicationsHandler(store.apps, store.directory, progress),
		ListReports:       query.NewListReportsHandler(store.apps, store.reports, store.directory, progress),
		Dashboard:         dashboard,
		Resolver:          resolver,
		Logger:            log,
		HealthChecker:     health,
	}
	if flags.Enabled(config.FeatureHTTPMetrics) {
		deps.Metrics = m
	}
	if flags.Enabled(config.FeatureRateLimit) {
		deps.RateLimiter = handlers.NewKeyedRateLimiter(cfg.HTTP.RateLimitPerSec, cfg.HTTP.RateLimitBurst)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	serverCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverCfg.MetricsPath = cfg.Observability.MetricsPath
	serverCfg.Version = cfg.App.Version

	srv, err := httpserver.NewServer(serverCfg, deps)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if deps.RateLimiter != nil {
		g.Go(func() error {
			deps.RateLimiter.Run(gctx, time.Minute)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("mentorship service is running", logger.String("host", cfg.HTTP.Host), logger.Int("port", cfg.HTTP.Port))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupEventLogger настраивает slog для слоя событий, в тот же поток, что и
// основной логгер.
func setupEventLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Observability.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("component", "events", "service", cfg.App.Name)
}
