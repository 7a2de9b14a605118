package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/autoacdc/internal/metrics"
	"github.com/vietddude/autoacdc/internal/planning/sites"
)

// Both lists live under one key so a catalog never mixes two refreshes.
const siteSnapshotKey = "autoacdc:sites:snapshot"

// Store is the subset of Client the site cache needs.
type Store interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedSiteProvider serves site lists from Redis and refreshes them from the
// wrapped provider once they expire. A cache failure never fails the lookup.
type CachedSiteProvider struct {
	next  sites.Provider
	store Store
	ttl   time.Duration
}

func NewCachedSiteProvider(next sites.Provider, store Store, ttl time.Duration) *CachedSiteProvider {
	return &CachedSiteProvider{next: next, store: store, ttl: ttl}
}

func (p *CachedSiteProvider) AllSites(ctx context.Context) ([]string, error) {
	snap, err := p.Snapshot(ctx)
	return snap.All, err
}

func (p *CachedSiteProvider) NotReadySites(ctx context.Context) ([]string, error) {
	snap, err := p.Snapshot(ctx)
	return snap.NotReady, err
}

func (p *CachedSiteProvider) StorageElementToComputeElement(se string) string {
	return p.next.StorageElementToComputeElement(se)
}

// Snapshot returns the cached site lists, loading both from the wrapped
// provider on a miss.
func (p *CachedSiteProvider) Snapshot(ctx context.Context) (sites.Snapshot, error) {
	var snap sites.Snapshot
	found, err := p.store.GetJSON(ctx, siteSnapshotKey, &snap)
	switch {
	case err != nil:
		metrics.SiteCacheTotal.WithLabelValues("error").Inc()
		slog.Warn("Site cache read failed", "key", siteSnapshotKey, "error", err)
	case found:
		metrics.SiteCacheTotal.WithLabelValues("hit").Inc()
		return snap, nil
	default:
		metrics.SiteCacheTotal.WithLabelValues("miss").Inc()
	}

	snap, err = sites.FetchSnapshot(ctx, p.next)
	if err != nil {
		return sites.Snapshot{}, err
	}
	if snap.All == nil {
		snap.All = []string{}
	}
	if snap.NotReady == nil {
		snap.NotReady = []string{}
	}
	if err := p.store.SetJSON(ctx, siteSnapshotKey, snap, p.ttl); err != nil {
		slog.Warn("Site cache write failed", "key", siteSnapshotKey, "error", err)
	}
	return snap, nil
}
