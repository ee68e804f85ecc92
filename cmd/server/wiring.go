package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/config"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/messaging"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/memory"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/postgres"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/redis"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/seed"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/logger"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/retry"
)

// applicationEventTypes change an artisan's status counts.
var applicationEventTypes = []shared.EventType{
	shared.EventApplicationSubmitted,
	shared.EventApplicationDecided,
	shared.EventApplicationCompleted,
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// storage groups the repositories of the selected driver.
type storage struct {
	apps       application.Repository
	reports    report.Repository
	directory  program.Directory
	seedTarget seed.Target
	health     func(ctx context.Context) error // nil for memory
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		s := memory.NewStore()
		return &storage{
			apps:       s.Applications(),
			reports:    s.Reports(),
			directory:  s.Directory(),
			seedTarget: s.Directory(),
			close:      func() {},
		}, nil
	}

	log.Info("connecting to database")

	var conn *postgres.Connection
	policy := retry.Startup(func(attempt int, err error, wait time.Duration) {
		log.Warn("database not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", wait),
			logger.Err(err),
		)
	})
	err := policy.Do(ctx, func(ctx context.Context) error {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()

		c, err := postgres.Open(connectCtx, cfg.Database.URL, postgres.PoolOptions{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if errors.Is(err, postgres.ErrInvalidURL) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", n))
	}

	directory := postgres.NewProgramRepository(conn)
	return &storage{
		apps:       postgres.NewApplicationRepository(conn),
		reports:    postgres.NewReportRepository(conn),
		directory:  directory,
		seedTarget: directory,
		health:     conn.Health,
		close: func() {
			log.Info("closing database connection")
			conn.Close()
		},
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// eventWorkers bounds concurrently running event handlers.
const eventWorkers = 10

type eventBus interface {
	shared.EventBus
	Close() error
}

// openEventBus returns the bus used by commands and the in-process bus that
// runs the handlers. With Redis fan-out they differ.
func openEventBus(cfg *config.Config, cache *redis.Cache, log *slog.Logger) (eventBus, *messaging.LocalBus, error) {
	local := messaging.NewLocalBus(log, eventWorkers)

	if cache == nil || !cfg.Features.Enabled(config.FeatureEventFanout) {
		return local, local, nil
	}

	bus, err := messaging.NewFanoutBus(local, messaging.NewRedisPubSub(cache.Client()), messaging.FanoutOptions{
		Channel:    cfg.Redis.EventsChannel,
		InstanceID: cfg.App.InstanceID,
		Logger:     log,
	})
	if err != nil {
		_ = local.Close()
		return nil, nil, fmt.Errorf("failed to start redis event bus: %w", err)
	}
	return bus, local, nil
}
