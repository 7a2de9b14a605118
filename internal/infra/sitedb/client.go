// Package sitedb reads the grid site list and each site's readiness.
package sitedb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vietddude/autoacdc/internal/infra/rpc"
	"github.com/vietddude/autoacdc/internal/planning/sites"
)

// StatusEnabled is the only status under which a site takes new work.
const StatusEnabled = "enabled"

// storageSuffixes are the storage element endings that do not exist on the
// compute side of a site.
var storageSuffixes = []string{"_Disk", "_MSS", "_Buffer", "_Export", "_ECHO", "_Tape"}

// Config holds the site status endpoint.
type Config struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	HTTP     rpc.Config    `yaml:",inline"`
}

// SiteStatus is one entry of the status document.
type SiteStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Ready reports whether the site accepts new work.
func (s SiteStatus) Ready() bool {
	return s.Status == StatusEnabled
}

// Client implements sites.Provider over the site status service.
type Client struct {
	http *rpc.Client
	url  string
}

func NewClient(http *rpc.Client, url string) *Client {
	return &Client{http: http, url: url}
}

// Statuses returns the status document sorted by site name.
func (c *Client) Statuses(ctx context.Context) ([]SiteStatus, error) {
	var out []SiteStatus
	if err := c.http.GetJSON(ctx, c.url, &out); err != nil {
		return nil, fmt.Errorf("fetch site status: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	slog.Debug("Fetched site status", "sites", len(out))
	return out, nil
}

// Snapshot splits one status document into the site list and its not-ready subset.
func (c *Client) Snapshot(ctx context.Context) (sites.Snapshot, error) {
	statuses, err := c.Statuses(ctx)
	if err != nil {
		return sites.Snapshot{}, err
	}
	snap := sites.Snapshot{All: make([]string, 0, len(statuses))}
	for _, s := range statuses {
		snap.All = append(snap.All, s.Name)
		if !s.Ready() {
			snap.NotReady = append(snap.NotReady, s.Name)
		}
	}
	return snap, nil
}

// AllSites returns every site named by the status document.
func (c *Client) AllSites(ctx context.Context) ([]string, error) {
	snap, err := c.Snapshot(ctx)
	return snap.All, err
}

// NotReadySites returns the sites whose status is anything but enabled.
func (c *Client) NotReadySites(ctx context.Context) ([]string, error) {
	snap, err := c.Snapshot(ctx)
	return snap.NotReady, err
}

func (c *Client) StorageElementToComputeElement(se string) string {
	return ComputeElement(se)
}

// ComputeElement strips storage endings from a storage element name, e.g.
// T1_UK_RAL_ECHO_Disk becomes T1_UK_RAL.
func ComputeElement(se string) string {
	for {
		trimmed := se
		for _, suffix := range storageSuffixes {
			trimmed = strings.TrimSuffix(trimmed, suffix)
		}
		if trimmed == se {
			return se
		}
		se = trimmed
	}
}
