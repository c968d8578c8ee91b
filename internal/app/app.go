// Package app initializes and holds the long-lived backends shared by the
// api and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	blobgcs "github.com/shortloop/shortloop/internal/blob/gcs"
	bloblocal "github.com/shortloop/shortloop/internal/blob/local"
	blobmemory "github.com/shortloop/shortloop/internal/blob/memory"
	brokermemory "github.com/shortloop/shortloop/internal/broker/memory"
	brokerredis "github.com/shortloop/shortloop/internal/broker/redis"
	cachememory "github.com/shortloop/shortloop/internal/cache/memory"
	cacheredis "github.com/shortloop/shortloop/internal/cache/redis"
	"github.com/shortloop/shortloop/internal/config"
	pubmemory "github.com/shortloop/shortloop/internal/publisher/memory"
	pubnoop "github.com/shortloop/shortloop/internal/publisher/noop"
	pubps "github.com/shortloop/shortloop/internal/publisher/pubsub"
	"github.com/shortloop/shortloop/internal/shortener"
	storagememory "github.com/shortloop/shortloop/internal/storage/memory"
	storagepostgres "github.com/shortloop/shortloop/internal/storage/postgres"
)

// memoryBrokerCapacity bounds the dev broker; Redis has no such limit.
const memoryBrokerCapacity = 1024

// App bundles the configured backends. Postgres and Redis are used when
// configured; otherwise in-memory fallbacks keep single-process development
// working without infrastructure.
type App struct {
	URLs      shortener.URLStore
	Jobs      shortener.JobStore
	Broker    shortener.Broker
	Cache     shortener.Cache
	Blob      shortener.BlobStore
	Publisher shortener.Publisher

	// Pool and RedisBroker are non-nil only when the respective backend is
	// configured; readiness checks ping them.
	Pool        *pgxpool.Pool
	RedisBroker *brokerredis.Broker

	redisClient *redis.Client
	logger      *zap.Logger
}

// New builds the backends from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	if cfg.DB.DSN != "" {
		pool, err := storagepostgres.NewPool(ctx, storagepostgres.PoolConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := storagepostgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.Pool = pool
		if a.URLs, err = storagepostgres.NewURLStore(pool); err != nil {
			return nil, err
		}
		if a.Jobs, err = storagepostgres.NewJobStore(pool); err != nil {
			return nil, err
		}
		logger.Info("using postgres stores")
	} else {
		a.URLs = storagememory.NewURLStore()
		a.Jobs = storagememory.NewJobStore()
		logger.Warn("db.dsn not set, using in-memory stores")
	}

	if cfg.Redis.Addr != "" {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		broker, err := brokerredis.New(a.redisClient, cfg.Broker.Queue)
		if err != nil {
			return nil, fmt.Errorf("create redis broker: %w", err)
		}
		if err := broker.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.RedisBroker = broker
		a.Broker = broker
		if a.Cache, err = cacheredis.New(a.redisClient, cfg.Cache.CacheTTL()); err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		logger.Info("using redis broker and cache", zap.String("queue", cfg.Broker.Queue))
	} else {
		a.Broker = brokermemory.New(memoryBrokerCapacity)
		a.Cache = cachememory.New()
		logger.Warn("redis.addr not set, using in-memory broker and cache")
	}

	var err error
	switch cfg.Storage.Provider {
	case "gcs":
		if a.Blob, err = blobgcs.New(ctx, cfg.Storage.GCSBucket); err != nil {
			return nil, fmt.Errorf("create gcs blob store: %w", err)
		}
	case "local":
		if a.Blob, err = bloblocal.New(cfg.Storage.LocalDir); err != nil {
			return nil, fmt.Errorf("create local blob store: %w", err)
		}
	default:
		a.Blob = blobmemory.New()
	}

	switch cfg.Events.Provider {
	case "pubsub":
		if a.Publisher, err = pubps.New(ctx, cfg.Events.ProjectID); err != nil {
			return nil, fmt.Errorf("create pubsub publisher: %w", err)
		}
	case "memory":
		a.Publisher = pubmemory.New()
	default:
		a.Publisher = pubnoop.New()
	}

	return a, nil
}

// Close releases the external connections.
func (a *App) Close() {
	if closer, ok := a.Publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if closer, ok := a.Blob.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("blob store close failed", zap.Error(err))
		}
	}
	if closer, ok := a.Broker.(interface{ Close() }); ok {
		closer.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
