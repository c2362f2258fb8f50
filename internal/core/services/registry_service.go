package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"
	"screenrelay/pkg/clock"
	"screenrelay/pkg/tracing"
	"screenrelay/pkg/utils"

	"go.uber.org/zap"
)

// RegistryService resolves viewer-supplied target names to device
// identifiers. Resolution order: cached mapping (re-verified against the live
// device), one directory refresh, then a fuzzy pass over the refreshed set.
// Fuzzy hits are memoized under the requested name so the next lookup is an
// exact cache hit.
type RegistryService struct {
	directory    ports.DeviceDirectory
	mappings     ports.MappingRepository
	clk          clock.Clock
	probeTimeout time.Duration
	logger       *zap.SugaredLogger

	// Serializes full refreshes; concurrent resolvers share one listing
	// instead of stampeding the directory.
	refreshMu sync.Mutex
}

func NewRegistryService(
	directory ports.DeviceDirectory,
	mappings ports.MappingRepository,
	clk clock.Clock,
	probeTimeout time.Duration,
	logger *zap.SugaredLogger,
) *RegistryService {
	return &RegistryService{
		directory:    directory,
		mappings:     mappings,
		clk:          clk,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

func (r *RegistryService) Resolve(ctx context.Context, target domain.TargetName) (domain.DeviceID, error) {
	if target == "" {
		return "", domain.ErrEmptyTarget
	}

	ctx, span := tracing.TraceResolve(ctx, string(target))
	defer span.End()

	// Cached mapping, verified against the live device. A device that
	// answers the probe but reports a different name has been reassigned;
	// its mapping is poison and gets evicted.
	if m, err := r.mappings.Get(ctx, target); err == nil {
		if r.verify(ctx, m) {
			m.VerifiedAt = r.clk.Now()
			if err := r.mappings.Put(ctx, m); err != nil {
				r.logger.Debugw("mapping verify-bump failed", "target", target, "error", err)
			}
			return m.DeviceID, nil
		}
		r.logger.Infow("cached mapping failed verification, evicting",
			"target", target,
			"device_id", m.DeviceID,
		)
		if err := r.mappings.Delete(ctx, target); err != nil {
			r.logger.Warnw("mapping eviction failed", "target", target, "error", err)
		}
	}

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warnw("directory refresh failed during resolution",
			"target", target,
			"error", err,
		)
	}

	if m, err := r.mappings.Get(ctx, target); err == nil {
		return m.DeviceID, nil
	}

	return r.resolveFuzzy(ctx, target)
}

// resolveFuzzy runs the staged name-matching rule over every known mapping.
// The first hit wins and is memoized under the requested name.
func (r *RegistryService) resolveFuzzy(ctx context.Context, target domain.TargetName) (domain.DeviceID, error) {
	all, err := r.mappings.All(ctx)
	if err != nil {
		r.logger.Warnw("mapping enumeration failed", "error", err)
		return "", &domain.DeviceNotFoundError{Target: target}
	}

	known := make([]string, 0, len(all))
	for _, m := range all {
		known = append(known, string(m.Target))
	}
	sort.Strings(known)

	for _, m := range all {
		if !utils.NamesMatch(string(target), string(m.Target)) {
			continue
		}
		memo := &domain.DeviceMapping{
			Target:     target,
			DeviceID:   m.DeviceID,
			VerifiedAt: r.clk.Now(),
		}
		if err := r.mappings.Put(ctx, memo); err != nil {
			r.logger.Debugw("fuzzy memoization failed", "target", target, "error", err)
		}
		r.logger.Infow("fuzzy-matched target",
			"target", target,
			"matched", m.Target,
			"device_id", m.DeviceID,
		)
		return m.DeviceID, nil
	}

	return "", &domain.DeviceNotFoundError{Target: target, Known: known}
}

// Refresh rebuilds the mapping set from a fresh directory listing. Offline
// devices are dropped; the swap is atomic for readers.
func (r *RegistryService) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	entries, err := r.directory.ListDevices(ctx)
	if err != nil {
		return err
	}

	now := r.clk.Now()
	mappings := make([]*domain.DeviceMapping, 0, len(entries))
	for _, e := range entries {
		if !e.Online() {
			continue
		}
		mappings = append(mappings, &domain.DeviceMapping{
			Target:     domain.TargetName(e.DisplayName),
			DeviceID:   e.DeviceID,
			VerifiedAt: now,
		})
	}

	if err := r.mappings.ReplaceAll(ctx, mappings); err != nil {
		return err
	}

	r.logger.Infow("device directory refreshed", "devices", len(mappings))
	return nil
}

// verify probes the mapped device and checks it still answers to the mapped
// name.
func (r *RegistryService) verify(ctx context.Context, m *domain.DeviceMapping) bool {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	if err := r.directory.Ping(probeCtx, m.DeviceID); err != nil {
		return false
	}

	name, err := r.directory.DeviceName(probeCtx, m.DeviceID)
	if err != nil {
		return false
	}
	return utils.NamesMatch(string(m.Target), name)
}
