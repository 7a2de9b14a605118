// Package reqmgr talks to the workflow-management service and the ACDC
// recovery-document store.
package reqmgr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/infra/rpc"
)

const (
	requestPath   = "/reqmgr2/data/request"
	splittingPath = "/reqmgr2/data/splitting"
	acdcViewPath  = "/_design/ACDC/_view/byCollectionName"
)

// Config holds service endpoints.
type Config struct {
	URL        string     `yaml:"url"`
	TestbedURL string     `yaml:"testbed_url"`
	HTTP       rpc.Config `yaml:",inline"`
}

// ACDCConfig points at the couch database holding recovery documents.
type ACDCConfig struct {
	// URL is the couch root, e.g. https://cmsweb.cern.ch/couchdb.
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// Client reads and writes workflows. Reads go to the base URL it was built with;
// writes take the base URL per call so testbed runs can be redirected.
type Client struct {
	http    *rpc.Client
	baseURL string
	acdc    ACDCConfig
}

func NewClient(http *rpc.Client, baseURL string, acdc ACDCConfig) *Client {
	return &Client{
		http:    http,
		baseURL: strings.TrimRight(baseURL, "/"),
		acdc:    acdc,
	}
}

type requestResult struct {
	Result []map[string]map[string]any `json:"result"`
}

// Fetch returns the current descriptor of a workflow.
func (c *Client) Fetch(ctx context.Context, name string) (*domain.Workflow, error) {
	endpoint := fmt.Sprintf("%s%s?name=%s", c.baseURL, requestPath, url.QueryEscape(name))

	var out requestResult
	if err := c.http.GetJSON(ctx, endpoint, &out); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, name)
		}
		return nil, fmt.Errorf("fetch workflow %s: %w", name, err)
	}

	for _, item := range out.Result {
		if raw, ok := item[name]; ok {
			return domain.DecodeWorkflow(name, raw)
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, name)
}

type acdcView struct {
	Rows []struct {
		Doc struct {
			FilesetName string `json:"fileset_name"`
			Files       map[string]struct {
				Locations []string `json:"locations"`
			} `json:"files"`
		} `json:"doc"`
	} `json:"rows"`
}

// RecoveryFootprint returns, per task path, the storage elements holding input
// the workflow still has to process. When task is set only that task is kept.
func (c *Client) RecoveryFootprint(ctx context.Context, workflow, task string) (map[string][]string, error) {
	q := url.Values{}
	q.Set("key", fmt.Sprintf("%q", workflow))
	q.Set("include_docs", "true")
	q.Set("reduce", "false")
	endpoint := fmt.Sprintf("%s/%s%s?%s", strings.TrimRight(c.acdc.URL, "/"), c.acdc.Database, acdcViewPath, q.Encode())

	var view acdcView
	if err := c.http.GetJSON(ctx, endpoint, &view); err != nil {
		return nil, fmt.Errorf("fetch recovery documents of %s: %w", workflow, err)
	}

	sets := make(map[string]map[string]struct{})
	for _, row := range view.Rows {
		name := row.Doc.FilesetName
		if name == "" || (task != "" && name != task) {
			continue
		}
		if sets[name] == nil {
			sets[name] = make(map[string]struct{})
		}
		for _, f := range row.Doc.Files {
			for _, loc := range f.Locations {
				sets[name][loc] = struct{}{}
			}
		}
	}

	out := make(map[string][]string, len(sets))
	for name, set := range sets {
		out[name] = domain.SortedKeys(set)
	}
	return out, nil
}

// WorkflowsByCampaign lists the workflow names of a campaign.
func (c *Client) WorkflowsByCampaign(ctx context.Context, campaign string) ([]string, error) {
	endpoint := fmt.Sprintf("%s%s?campaign=%s&detail=false", c.baseURL, requestPath, url.QueryEscape(campaign))

	var out struct {
		Result []string `json:"result"`
	}
	if err := c.http.GetJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("list campaign %s: %w", campaign, err)
	}
	sort.Strings(out.Result)
	return out.Result, nil
}

// WorkflowDetailsByCampaign returns the descriptors of every workflow of a campaign.
func (c *Client) WorkflowDetailsByCampaign(ctx context.Context, campaign string) ([]*domain.Workflow, error) {
	endpoint := fmt.Sprintf("%s%s?campaign=%s&detail=true", c.baseURL, requestPath, url.QueryEscape(campaign))

	var out requestResult
	if err := c.http.GetJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("list campaign %s: %w", campaign, err)
	}

	var wfs []*domain.Workflow
	for _, item := range out.Result {
		for name, raw := range item {
			wf, err := domain.DecodeWorkflow(name, raw)
			if err != nil {
				return nil, err
			}
			wfs = append(wfs, wf)
		}
	}
	sort.Slice(wfs, func(i, j int) bool { return wfs[i].Name < wfs[j].Name })
	return wfs, nil
}

func isNotFound(err error) bool {
	var se *rpc.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
