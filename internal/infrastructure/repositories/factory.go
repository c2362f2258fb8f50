package repositories

import (
	"context"

	"screenrelay/internal/core/ports"
	"screenrelay/internal/infrastructure/repositories/memory"
	redisrepo "screenrelay/internal/infrastructure/repositories/redis"
	"screenrelay/pkg/clock"
	"screenrelay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	clock       clock.Clock
	logger      *zap.SugaredLogger

	memoryLock *memory.DeviceLock
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateMappingRepository creates the device-mapping cache (Redis or memory
// with fallback)
func (f *RepositoryFactory) CreateMappingRepository() ports.MappingRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewMappingRepository(f.redisClient, f.cfg.Registry.MappingTTL)
	}
	return memory.NewMappingRepository(f.cfg.Registry.MappingTTL)
}

// CreateDeviceLock creates the device-lock table. The memory variant keeps a
// handle so StartSweep can run its periodic reclamation; the Redis variant
// relies on key TTLs instead.
func (f *RepositoryFactory) CreateDeviceLock() ports.DeviceLock {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewDeviceLock(
			f.redisClient,
			f.cfg.Lock.ScreenshotStaleness,
			f.cfg.Lock.RecordStaleness,
		)
	}

	f.memoryLock = memory.NewDeviceLock(memory.DeviceLockConfig{
		ScreenshotStaleness: f.cfg.Lock.ScreenshotStaleness,
		RecordStaleness:     f.cfg.Lock.RecordStaleness,
		SweepInterval:       f.cfg.Lock.SweepInterval,
		HardCeiling:         f.cfg.Lock.HardCeiling,
	}, f.clock, f.logger)
	return f.memoryLock
}

// MemoryLock returns the in-process lock table, nil when Redis is in use.
func (f *RepositoryFactory) MemoryLock() *memory.DeviceLock {
	return f.memoryLock
}

// StartSweep launches the periodic stale-lock sweep for the memory lock.
func (f *RepositoryFactory) StartSweep(ctx context.Context) {
	if f.memoryLock != nil {
		go f.memoryLock.Sweep(ctx)
	}
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
