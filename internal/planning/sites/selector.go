package sites

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

// Check is the readiness partition of a candidate list.
type Check struct {
	Usable      []string
	NotReady    []string
	NotExisting []string
	// ForceRedirector is set when some, but not all, candidates are down.
	ForceRedirector bool
}

// SelectOptions are the caller-supplied placement constraints.
type SelectOptions struct {
	Include []string
	Exclude []string
	// AllowFallback replaces an empty selection with one random tier-1 site.
	AllowFallback bool
}

// Selection is the outcome of site selection.
type Selection struct {
	Sites           []string
	ForceRedirector bool
	FellBack        bool
}

// Selector filters candidate sites against a catalog.
type Selector struct {
	catalog   *Catalog
	rng       *rand.Rand
	fallbacks int
}

// NewSelector creates a selector. A nil rng is seeded from the clock.
func NewSelector(catalog *Catalog, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Selector{catalog: catalog, rng: rng}
}

// Fallbacks returns how many selections fell back to a random tier-1 site.
func (s *Selector) Fallbacks() int {
	return s.fallbacks
}

// Catalog returns the snapshot the selector works on.
func (s *Selector) Catalog() *Catalog {
	return s.catalog
}

// CheckSites partitions candidates into usable, not ready and unknown sites.
func (s *Selector) CheckSites(candidates []string) Check {
	var c Check
	for _, site := range dedupe(candidates) {
		switch {
		case !s.catalog.Exists(site):
			c.NotExisting = append(c.NotExisting, site)
		case !s.catalog.IsReady(site):
			c.NotReady = append(c.NotReady, site)
		default:
			c.Usable = append(c.Usable, site)
		}
	}

	switch {
	case len(c.Usable) == 0:
		slog.Info("None of the necessary sites are ready", "candidates", len(candidates))
	case len(c.NotReady) > 0:
		slog.Warn("Some of the necessary sites are not ready, enabling remote reads", "not_ready", c.NotReady)
		c.ForceRedirector = true
	default:
		slog.Debug("All necessary sites are available", "sites", c.Usable)
	}
	if len(c.NotExisting) > 0 {
		slog.Debug("Ignoring unknown sites", "sites", c.NotExisting)
	}
	return c
}

// SelectSites derives the site whitelist from a workflow footprint.
// Tier-3 sites are dropped, Include is added, readiness is checked and Exclude is
// removed last. An empty result after exclusion is only an error when no fallback
// is allowed.
func (s *Selector) SelectSites(candidates []string, opts SelectOptions) (Selection, error) {
	sites := excludeTier3(candidates)
	if len(opts.Include) > 0 {
		sites = union(sites, opts.Include)
	}

	check := s.CheckSites(sites)
	sel := Selection{ForceRedirector: check.ForceRedirector}
	if len(check.Usable) == 0 && !opts.AllowFallback {
		return Selection{}, fmt.Errorf("%w: none of %v is ready", domain.ErrNoSitesAvailable, sites)
	}

	sel.Sites = difference(check.Usable, opts.Exclude)
	if len(sel.Sites) == 0 && len(check.Usable) > 0 {
		slog.Info("No sites left after sites were excluded")
	}

	if len(sel.Sites) == 0 {
		if !opts.AllowFallback {
			return sel, nil
		}
		site, err := s.RandomTier1(opts.Exclude, false)
		if err != nil {
			return Selection{}, err
		}
		slog.Warn("No sites available, falling back to a random tier-1 site", "site", site)
		sel.Sites = []string{site}
		sel.ForceRedirector = true
		sel.FellBack = true
		s.fallbacks++
	}
	return sel, nil
}

// SelectWithFallback is SelectSites with the random tier-1 fallback enabled.
func (s *Selector) SelectWithFallback(candidates []string, include, exclude []string) (Selection, error) {
	return s.SelectSites(candidates, SelectOptions{Include: include, Exclude: exclude, AllowFallback: true})
}

// RandomTier1 picks a ready, non-excluded tier-1 site uniformly at random.
// With disk set the disk endpoint name is returned.
func (s *Selector) RandomTier1(exclude []string, disk bool) (string, error) {
	candidates := difference(s.CheckSites(s.catalog.Tier1Sites()).Usable, exclude)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: every ready tier-1 site is excluded", domain.ErrNoSitesAvailable)
	}

	site := candidates[s.rng.IntN(len(candidates))]
	if disk {
		site = domain.DiskEndpoint(site)
	}
	return site, nil
}

func excludeTier3(sites []string) []string {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		if domain.SiteTier(s) != 3 {
			out = append(out, s)
		}
	}
	return out
}

func union(a, b []string) []string {
	return dedupe(append(append([]string{}, a...), b...))
}

func difference(a, b []string) []string {
	drop := toSet(b)
	out := make([]string, 0, len(a))
	for _, s := range a {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// dedupe returns the unique values in sorted order.
func dedupe(list []string) []string {
	return sorted(toSet(list))
}
