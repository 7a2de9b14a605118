package reqmgr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/infra/rpc"
)

type call struct {
	Method string
	Path   string
	Query  string
	Body   any
}

// recorder is a fake workflow-management service keyed by "METHOD path".
type recorder struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]any
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body any
	if req.ContentLength > 0 {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}
	r.mu.Lock()
	r.calls = append(r.calls, call{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery, Body: body})
	resp, ok := r.responses[req.Method+" "+req.URL.Path]
	r.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, responses map[string]any) (*Client, *recorder, string) {
	t.Helper()
	rec := &recorder{responses: responses}
	server := httptest.NewServer(rec)
	t.Cleanup(server.Close)

	httpClient, err := rpc.NewClient("reqmgr", rpc.Config{
		Timeout: 5 * time.Second,
		Retry:   rpc.RetryConfig{MaxAttempts: 1},
	}, rpc.AuthConfig{})
	if err != nil {
		t.Fatalf("rpc.NewClient: %v", err)
	}
	c := NewClient(httpClient, server.URL, ACDCConfig{URL: server.URL + "/couchdb", Database: "acdcserver"})
	return c, rec, server.URL
}

// =============================================================================
// Reads
// =============================================================================

func TestFetch(t *testing.T) {
	c, rec, _ := newTestClient(t, map[string]any{
		"GET /reqmgr2/data/request": map[string]any{
			"result": []any{map[string]any{
				"wf": map[string]any{
					"RequestType":    "TaskChain",
					"RequestStatus":  "running-closed",
					"AcquisitionEra": map[string]any{"Task1": "Run3"},
					"Task1":          map[string]any{"TaskName": "GEN", "Memory": 2000.0, "Multicore": 2.0},
				},
			}},
		},
	})

	wf, err := c.Fetch(context.Background(), "wf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wf.IsTaskChain() || wf.Tasks[0].Name != "GEN" || wf.Tasks[0].Memory != 2000 {
		t.Errorf("unexpected workflow: %+v", wf)
	}
	if !wf.AcquisitionEra.IsPerTask() {
		t.Error("AcquisitionEra should be per task")
	}
	if rec.calls[0].Query != "name=wf" {
		t.Errorf("query = %s", rec.calls[0].Query)
	}
}

func TestFetch_NotFound(t *testing.T) {
	c, _, _ := newTestClient(t, map[string]any{
		"GET /reqmgr2/data/request": map[string]any{"result": []any{}},
	})
	if _, err := c.Fetch(context.Background(), "missing"); !errors.Is(err, domain.ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}

	c404, _, _ := newTestClient(t, nil)
	if _, err := c404.Fetch(context.Background(), "missing"); !errors.Is(err, domain.ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound on 404, got %v", err)
	}
}

func TestRecoveryFootprint(t *testing.T) {
	doc := func(fileset string, locs ...string) map[string]any {
		return map[string]any{"doc": map[string]any{
			"fileset_name": fileset,
			"files": map[string]any{
				"/store/a.root": map[string]any{"locations": locs},
			},
		}}
	}
	c, rec, _ := newTestClient(t, map[string]any{
		"GET /couchdb/acdcserver/_design/ACDC/_view/byCollectionName": map[string]any{
			"rows": []any{
				doc("/wf/Task1", "T1_US_FNAL_Disk", "T2_CH_CERN"),
				doc("/wf/Task1", "T2_CH_CERN", "T2_US_MIT"),
				doc("/wf/Task1/Merge", "T2_DE_DESY"),
			},
		},
	})

	got, err := c.RecoveryFootprint(context.Background(), "wf", "/wf/Task1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string][]string{"/wf/Task1": {"T1_US_FNAL_Disk", "T2_CH_CERN", "T2_US_MIT"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if rec.calls[0].Query != `include_docs=true&key=%22wf%22&reduce=false` {
		t.Errorf("query = %s", rec.calls[0].Query)
	}
}

func TestWorkflowsByCampaign(t *testing.T) {
	c, rec, _ := newTestClient(t, map[string]any{
		"GET /reqmgr2/data/request": map[string]any{"result": []string{"wf_b", "wf_a"}},
	})

	got, err := c.WorkflowsByCampaign(context.Background(), "Run3Summer22")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"wf_a", "wf_b"}) {
		t.Errorf("got %v", got)
	}
	if rec.calls[0].Query != "campaign=Run3Summer22&detail=false" {
		t.Errorf("query = %s", rec.calls[0].Query)
	}
}

// =============================================================================
// Writes
// =============================================================================

func TestSubmit(t *testing.T) {
	c, rec, base := newTestClient(t, map[string]any{
		"POST /reqmgr2/data/request": map[string]any{"result": []any{map[string]any{"request": "acdc_wf"}}},
		"GET /reqmgr2/data/splitting/acdc_wf": map[string]any{"result": []any{
			map[string]any{"taskName": "/acdc_wf/Task1", "taskType": "Processing", "splitAlgo": "EventAwareLumiBased",
				"splitParams": map[string]any{"events_per_job": 1000.0, "halt_job_on_file_boundaries": true}},
			map[string]any{"taskName": "/acdc_wf/Task1/Merge", "taskType": "Merge", "splitAlgo": "ParentlessMergeBySize",
				"splitParams": map[string]any{"max_merge_events": 100000.0}},
		}},
		"POST /reqmgr2/data/splitting/acdc_wf": map[string]any{"result": []any{}},
		"PUT /reqmgr2/data/request/acdc_wf":    map[string]any{"result": []any{}},
	})

	source := &domain.Workflow{Name: "wf", Raw: map[string]any{"Campaign": "Run3", "Group": "DATAOPS"}}
	overrides := domain.RecoveryOverrides{Memory: 3000, Multicore: "4", TrustSitelists: true, Split: "2x"}

	name, err := c.Submit(context.Background(), base, "/wf/Task1", source, overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "acdc_wf" {
		t.Errorf("name = %s", name)
	}

	if len(rec.calls) != 4 {
		t.Fatalf("calls = %+v", rec.calls)
	}
	create := rec.calls[0].Body.(map[string]any)
	for k, v := range map[string]any{
		"RequestType":         "Resubmission",
		"OriginalRequestName": "wf",
		"InitialTaskPath":     "/wf/Task1",
		"ACDCDatabase":        "acdcserver",
		"Campaign":            "Run3",
		"Memory":              3000.0,
		"Multicore":           4.0,
		"TrustSitelists":      true,
	} {
		if create[k] != v {
			t.Errorf("create[%s] = %v, want %v", k, create[k], v)
		}
	}

	split := rec.calls[2].Body.([]any)
	if len(split) != 1 {
		t.Fatalf("split update = %v", split)
	}
	params := split[0].(map[string]any)["splitParams"].(map[string]any)
	if params["events_per_job"] != 500.0 {
		t.Errorf("events_per_job = %v", params["events_per_job"])
	}

	approve := rec.calls[3]
	if approve.Method != http.MethodPut || approve.Body.(map[string]any)["RequestStatus"] != "assignment-approved" {
		t.Errorf("approve call = %+v", approve)
	}
}

func TestSubmit_NoRequestReturned(t *testing.T) {
	c, _, base := newTestClient(t, map[string]any{
		"POST /reqmgr2/data/request": map[string]any{"result": []any{}},
	})
	name, err := c.Submit(context.Background(), base, "/wf/Task1", &domain.Workflow{Name: "wf"}, domain.RecoveryOverrides{})
	if err != nil || name != "" {
		t.Errorf("got (%q, %v), want empty name", name, err)
	}
}

func TestSubmit_CreationNotRetried(t *testing.T) {
	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == requestPath {
			if posts.Add(1) == 1 {
				http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{map[string]any{"request": "acdc_2"}}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{}})
	}))
	defer server.Close()

	httpClient, err := rpc.NewClient("reqmgr", rpc.Config{
		Timeout: 5 * time.Second,
		Retry: rpc.RetryConfig{
			MaxAttempts:     3,
			InitialDelay:    time.Millisecond,
			MaxDelay:        5 * time.Millisecond,
			BackoffMultiple: 2,
		},
	}, rpc.AuthConfig{})
	if err != nil {
		t.Fatalf("rpc.NewClient: %v", err)
	}
	c := NewClient(httpClient, server.URL, ACDCConfig{URL: server.URL + "/couchdb", Database: "acdcserver"})

	name, err := c.Submit(context.Background(), server.URL, "/wf/Task1", &domain.Workflow{Name: "wf"}, domain.RecoveryOverrides{})
	if err == nil {
		t.Fatalf("expected error, got name %q", name)
	}
	if name != "" {
		t.Errorf("name = %q, want empty", name)
	}
	if posts.Load() != 1 {
		t.Errorf("creation POSTs = %d, want 1", posts.Load())
	}
}

func TestSubmit_ApprovalFailureKeepsName(t *testing.T) {
	c, _, base := newTestClient(t, map[string]any{
		"POST /reqmgr2/data/request": map[string]any{"result": []any{map[string]any{"request": "acdc_wf"}}},
	})
	name, err := c.Submit(context.Background(), base, "/wf/Task1", &domain.Workflow{Name: "wf"}, domain.RecoveryOverrides{})
	if err == nil {
		t.Fatal("expected approval error")
	}
	if name != "acdc_wf" {
		t.Errorf("name = %q, want acdc_wf", name)
	}
}

func TestAssign(t *testing.T) {
	c, rec, base := newTestClient(t, map[string]any{
		"PUT /reqmgr2/data/request/acdc_wf": map[string]any{"result": []any{}},
	})
	params := &domain.AssignmentParameters{
		SiteWhitelist:  []string{"T2_CH_CERN"},
		MergedLFNBase:  "/store/mc",
		Execute:        true,
		AcquisitionEra: domain.ByTask(map[string]string{"Task1": "Run3"}),
		Memory:         domain.Scalar(3000),
	}

	ok, err := c.Assign(context.Background(), base, "acdc_wf", "production", params)
	if err != nil || !ok {
		t.Fatalf("Assign = (%v, %v)", ok, err)
	}

	body := rec.calls[0].Body.(map[string]any)
	if body["RequestStatus"] != "assigned" || body["Team"] != "production" {
		t.Errorf("body = %v", body)
	}
	if body["Memory"] != 3000.0 {
		t.Errorf("Memory = %v", body["Memory"])
	}
	if era := body["AcquisitionEra"].(map[string]any); era["Task1"] != "Run3" {
		t.Errorf("AcquisitionEra = %v", era)
	}
	if body["execute"] != true {
		t.Errorf("execute = %v", body["execute"])
	}
}

func TestAssign_Rejected(t *testing.T) {
	c, _, base := newTestClient(t, nil)
	ok, err := c.Assign(context.Background(), base, "acdc_wf", "production", &domain.AssignmentParameters{})
	if ok || err == nil {
		t.Errorf("Assign = (%v, %v), want failure", ok, err)
	}
}

func TestScaleSplitting(t *testing.T) {
	tests := []struct {
		policy string
		in     map[string]any
		want   map[string]any
	}{
		{"2x", map[string]any{"events_per_job": 1000.0, "lumis_per_job": 3.0}, map[string]any{"events_per_job": 500, "lumis_per_job": 1}},
		{"max", map[string]any{"files_per_job": 10.0}, map[string]any{"files_per_job": 1}},
		{"10x", map[string]any{"lumis_per_job": 4.0, "halt": true}, map[string]any{"lumis_per_job": 1, "halt": true}},
	}
	for _, tt := range tests {
		if !ScaleSplitting(tt.in, tt.policy) {
			t.Errorf("%s: expected change", tt.policy)
		}
		if !reflect.DeepEqual(tt.in, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.policy, tt.in, tt.want)
		}
	}
	if ScaleSplitting(map[string]any{"max_merge_events": 5.0}, "2x") {
		t.Error("non per-job keys must not change")
	}
}
