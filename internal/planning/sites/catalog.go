// Package sites selects the compute sites a recovery workflow may run at.
package sites

import (
	"context"
	"fmt"
	"sort"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

// Provider reports the sites known to the grid and their readiness.
type Provider interface {
	AllSites(ctx context.Context) ([]string, error)
	NotReadySites(ctx context.Context) ([]string, error)
	StorageElementToComputeElement(se string) string
}

// Snapshot is the site list together with its not-ready subset.
type Snapshot struct {
	All      []string `json:"all"`
	NotReady []string `json:"not_ready"`
}

// SnapshotProvider is implemented by providers that read both lists from a
// single document, so the two never come from different moments.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// FetchSnapshot reads both lists, in one call when p supports it.
func FetchSnapshot(ctx context.Context, p Provider) (Snapshot, error) {
	if sp, ok := p.(SnapshotProvider); ok {
		snap, err := sp.Snapshot(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to fetch site snapshot: %w", err)
		}
		return snap, nil
	}
	all, err := p.AllSites(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch site list: %w", err)
	}
	notReady, err := p.NotReadySites(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch site readiness: %w", err)
	}
	return Snapshot{All: all, NotReady: notReady}, nil
}

// Catalog is a point-in-time snapshot of the site list.
// One catalog is loaded per orchestration run and never refreshed.
type Catalog struct {
	all      map[string]struct{}
	notReady map[string]struct{}
	seToCE   func(string) string
}

// NewCatalog builds a catalog from explicit lists. seToCE may be nil, in which
// case storage element names are used as compute element names.
func NewCatalog(all, notReady []string, seToCE func(string) string) *Catalog {
	c := &Catalog{
		all:      toSet(all),
		notReady: toSet(notReady),
		seToCE:   seToCE,
	}
	if c.seToCE == nil {
		c.seToCE = func(se string) string { return se }
	}
	return c
}

// LoadCatalog fetches a snapshot from the provider.
func LoadCatalog(ctx context.Context, p Provider) (*Catalog, error) {
	snap, err := FetchSnapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	return NewCatalog(snap.All, snap.NotReady, p.StorageElementToComputeElement), nil
}

func (c *Catalog) AllSites() []string      { return sorted(c.all) }
func (c *Catalog) NotReadySites() []string { return sorted(c.notReady) }

// Exists reports whether the site is known to the catalog.
func (c *Catalog) Exists(site string) bool {
	_, ok := c.all[site]
	return ok
}

// IsReady reports whether the site is known and not flagged as not ready.
func (c *Catalog) IsReady(site string) bool {
	_, down := c.notReady[site]
	return c.Exists(site) && !down
}

// SEToCE maps a storage element to the compute element that serves it.
func (c *Catalog) SEToCE(se string) string {
	return c.seToCE(se)
}

// Tier1Sites returns every tier-1 site of the catalog, ready or not.
func (c *Catalog) Tier1Sites() []string {
	var out []string
	for s := range c.all {
		if domain.SiteTier(s) == 1 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

func sorted(set map[string]struct{}) []string {
	return domain.SortedKeys(set)
}
