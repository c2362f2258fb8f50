package memory

import (
	"context"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"
	"screenrelay/pkg/cache"
)

// MappingRepository keeps target-to-device mappings in a TTL cache so
// entries that were never re-verified age out on their own.
type MappingRepository struct {
	entries *cache.Cache[*domain.DeviceMapping]
}

func NewMappingRepository(ttl time.Duration) ports.MappingRepository {
	return &MappingRepository{
		entries: cache.New[*domain.DeviceMapping](ttl),
	}
}

func (r *MappingRepository) Get(ctx context.Context, target domain.TargetName) (*domain.DeviceMapping, error) {
	m, ok := r.entries.Get(string(target))
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	return m, nil
}

func (r *MappingRepository) Put(ctx context.Context, mapping *domain.DeviceMapping) error {
	r.entries.Set(string(mapping.Target), mapping)
	return nil
}

func (r *MappingRepository) Delete(ctx context.Context, target domain.TargetName) error {
	r.entries.Delete(string(target))
	return nil
}

func (r *MappingRepository) All(ctx context.Context) ([]*domain.DeviceMapping, error) {
	keys := r.entries.Keys()
	mappings := make([]*domain.DeviceMapping, 0, len(keys))
	for _, k := range keys {
		if m, ok := r.entries.Get(k); ok {
			mappings = append(mappings, m)
		}
	}
	return mappings, nil
}

func (r *MappingRepository) ReplaceAll(ctx context.Context, mappings []*domain.DeviceMapping) error {
	values := make(map[string]*domain.DeviceMapping, len(mappings))
	for _, m := range mappings {
		values[string(m.Target)] = m
	}
	r.entries.Replace(values)
	return nil
}
