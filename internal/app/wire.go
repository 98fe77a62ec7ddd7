package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/GauravKarakoti/ConwayBets/internal/blob/s3"
	"github.com/GauravKarakoti/ConwayBets/internal/cache/redis"
	"github.com/GauravKarakoti/ConwayBets/internal/client"
	"github.com/GauravKarakoti/ConwayBets/internal/config"
	"github.com/GauravKarakoti/ConwayBets/internal/domain"
	"github.com/GauravKarakoti/ConwayBets/internal/store/postgres"
)

// Dependencies bundles everything the application modes operate on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Client *client.Client

	// Mirror read model (nil outside mirror mode)
	MarketStore domain.MarketStore
	BetStore    domain.BetStore

	// Caching (nil unless Redis is enabled)
	MarketCache domain.MarketCache
	LockManager domain.LockManager

	// Archival (nil unless archiving is enabled)
	Archiver domain.Archiver
}

// needsPostgres returns true for modes that require the read-model database.
func needsPostgres(mode string) bool {
	return mode == "mirror"
}

// Wire constructs the concrete dependency implementations from configuration
// and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	c, err := client.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: client: %w", err)
	}
	closers = append(closers, c.Close)
	deps.Client = c

	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Store.DSN,
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			Database: cfg.Store.Database,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			SSLMode:  cfg.Store.SSLMode,
			MaxConns: cfg.Store.PoolMaxConns,
			MinConns: cfg.Store.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Store.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.BetStore = postgres.NewBetStore(pool)
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	return deps, cleanup, nil
}
