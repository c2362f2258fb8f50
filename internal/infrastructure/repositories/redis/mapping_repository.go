package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// MappingRepository shares the device-name cache between relay instances
// pointed at the same device farm. Entries expire with the configured TTL,
// mirroring the memory implementation's aging.
type MappingRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewMappingRepository(client *redis.Client, ttl time.Duration) ports.MappingRepository {
	return &MappingRepository{
		client: client,
		prefix: "screenrelay:mapping:",
		ttl:    ttl,
	}
}

func (r *MappingRepository) mappingKey(target domain.TargetName) string {
	return r.prefix + string(target)
}

func (r *MappingRepository) indexKey() string {
	return r.prefix + "targets"
}

func (r *MappingRepository) Get(ctx context.Context, target domain.TargetName) (*domain.DeviceMapping, error) {
	data, err := r.client.Get(ctx, r.mappingKey(target)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping from Redis: %w", err)
	}

	var mapping domain.DeviceMapping
	if err := json.Unmarshal([]byte(data), &mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mapping: %w", err)
	}
	return &mapping, nil
}

func (r *MappingRepository) Put(ctx context.Context, mapping *domain.DeviceMapping) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.mappingKey(mapping.Target), data, r.ttl)
	pipe.SAdd(ctx, r.indexKey(), string(mapping.Target))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set mapping in Redis: %w", err)
	}
	return nil
}

func (r *MappingRepository) Delete(ctx context.Context, target domain.TargetName) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.mappingKey(target))
	pipe.SRem(ctx, r.indexKey(), string(target))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete mapping from Redis: %w", err)
	}
	return nil
}

func (r *MappingRepository) All(ctx context.Context) ([]*domain.DeviceMapping, error) {
	targets, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping targets: %w", err)
	}

	mappings := make([]*domain.DeviceMapping, 0, len(targets))
	for _, t := range targets {
		m, err := r.Get(ctx, domain.TargetName(t))
		if err == nil {
			mappings = append(mappings, m)
			continue
		}
		// Expired entry still referenced by the index: drop the reference.
		if err == domain.ErrMappingNotFound {
			r.client.SRem(ctx, r.indexKey(), t)
		}
	}
	return mappings, nil
}

func (r *MappingRepository) ReplaceAll(ctx context.Context, mappings []*domain.DeviceMapping) error {
	old, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to read mapping index: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, t := range old {
		pipe.Del(ctx, r.mappingKey(domain.TargetName(t)))
	}
	pipe.Del(ctx, r.indexKey())
	for _, m := range mappings {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal mapping: %w", err)
		}
		pipe.Set(ctx, r.mappingKey(m.Target), data, r.ttl)
		pipe.SAdd(ctx, r.indexKey(), string(m.Target))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace mappings in Redis: %w", err)
	}
	return nil
}
