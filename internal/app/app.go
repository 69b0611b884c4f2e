// Package app assembles the engine and its collaborators from configuration.
// Both the API and the worker process start from Open.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/idempotency"
	"github.com/narvanalabs/locum/internal/invite"
	"github.com/narvanalabs/locum/internal/lifecycle"
	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/queue"
	qmemory "github.com/narvanalabs/locum/internal/queue/memory"
	qpostgres "github.com/narvanalabs/locum/internal/queue/postgres"
	"github.com/narvanalabs/locum/internal/secrets"
	"github.com/narvanalabs/locum/internal/store"
	"github.com/narvanalabs/locum/internal/store/memory"
	"github.com/narvanalabs/locum/internal/store/postgres"
	"github.com/narvanalabs/locum/pkg/config"
	"github.com/redis/go-redis/v9"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Store      store.Store
	Queue      queue.Queue
	Broker     *notify.Broker
	Dispatcher *notify.Dispatcher
	Engine     *lifecycle.Engine
	Inbox      *notify.Inbox
	Auth       *auth.Service
	// Redis is nil when REDIS_URL is unset.
	Redis *redis.Client

	logger *slog.Logger
}

// Open connects to the configured store (applying the schema for postgres)
// and, when configured, to Redis, then builds the engine.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		a.Store = memory.New()
		a.Queue = qmemory.New()
	default:
		pg, err := postgres.NewPostgresStore(postgres.DefaultConfig(cfg.DatabaseDSN), logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		a.Store = pg
		a.Queue = qpostgres.NewPostgresQueue(pg.DB(), logger)
	}

	if cfg.RedisURL != "" {
		client, err := idempotency.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
	}

	sealer, err := secrets.NewSealer(&secrets.Config{
		AgePublicKey:  cfg.Credentials.AgePublicKey,
		AgePrivateKey: cfg.Credentials.AgePrivateKey,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("credentials sealer: %w", err)
	}

	a.Broker = notify.NewBroker(logger)
	a.Dispatcher, err = notify.NewDispatcher(notify.Config{BaseURL: cfg.AppBaseURL}, a.Queue, a.Broker, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Engine, err = lifecycle.NewEngine(lifecycle.Deps{
		Store:      a.Store,
		Dispatcher: a.Dispatcher,
		Issuer:     invite.NewIssuer(cfg.InvitationTTL),
		Sealer:     sealer,
		RBAC:       auth.NewRBACService(logger),
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Inbox = notify.NewInbox(a.Store)
	a.Auth = auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, logger)
	return a, nil
}

// Idempotency returns the Redis-backed store when Redis is configured and an
// in-process one otherwise.
func (a *App) Idempotency() idempotency.Store {
	if a.Redis != nil {
		return idempotency.NewRedisStore(a.Redis, idempotency.DefaultTTL)
	}
	return idempotency.NewMemoryStore(idempotency.DefaultTTL)
}

// InProcessQueue reports whether the delivery queue lives in this process,
// in which case the process must also run the delivery worker.
func (a *App) InProcessQueue() bool {
	_, ok := a.Queue.(*qmemory.Queue)
	return ok
}

// Close releases the store and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
