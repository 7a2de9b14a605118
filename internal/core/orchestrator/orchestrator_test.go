package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/metrics"
)

const (
	taskPath     = "/orig_wf/Task1"
	recoveryName = "acdc_orig_wf"
	prodURL      = "https://cmsweb.cern.ch"
	testbedURL   = "https://cmsweb-testbed.cern.ch"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeWorkflows struct {
	workflows map[string]*domain.Workflow
	footprint map[string][]string
}

func (f *fakeWorkflows) Fetch(ctx context.Context, name string) (*domain.Workflow, error) {
	wf, ok := f.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, name)
	}
	return wf, nil
}

func (f *fakeWorkflows) RecoveryFootprint(ctx context.Context, workflow, task string) (map[string][]string, error) {
	return f.footprint, nil
}

type fakeSites struct{}

func (fakeSites) AllSites(ctx context.Context) ([]string, error) {
	return []string{"T1_US_FNAL", "T2_CH_CERN", "T2_US_MIT"}, nil
}

func (fakeSites) NotReadySites(ctx context.Context) ([]string, error) {
	return []string{"T2_US_MIT"}, nil
}

func (fakeSites) StorageElementToComputeElement(se string) string { return se }

type fakeCreator struct {
	name      string
	err       error
	calls     int
	baseURL   string
	overrides domain.RecoveryOverrides
}

func (f *fakeCreator) Submit(ctx context.Context, baseURL, task string, source *domain.Workflow, o domain.RecoveryOverrides) (string, error) {
	f.calls++
	f.baseURL = baseURL
	f.overrides = o
	return f.name, f.err
}

type fakeAssigner struct {
	ok     bool
	calls  int
	team   string
	params *domain.AssignmentParameters
}

func (f *fakeAssigner) Assign(ctx context.Context, baseURL, name, team string, params *domain.AssignmentParameters) (bool, error) {
	f.calls++
	f.team = team
	f.params = params
	return f.ok, nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []domain.RecoveryRun
}

func (f *fakeRecorder) Record(ctx context.Context, run domain.RecoveryRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRecorder) last() domain.RecoveryRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[len(f.runs)-1]
}

type harness struct {
	workflows *fakeWorkflows
	creator   *fakeCreator
	assigner  *fakeAssigner
	recorder  *fakeRecorder
	orch      *Orchestrator
}

func newHarness() *harness {
	source := &domain.Workflow{
		Name:              "orig_wf",
		RequestType:       domain.RequestTypeReReco,
		Memory:            2000,
		MergedLFNBase:     "/store/data",
		ProcessingVersion: 1,
		AcquisitionEra:    domain.Scalar("Run2018A"),
		ProcessingString:  domain.Scalar("UL2018"),
	}
	recovery := &domain.Workflow{
		Name:                recoveryName,
		RequestType:         domain.RequestTypeResubmission,
		Status:              domain.StatusAssignmentApproved,
		OriginalRequestName: "orig_wf",
		InitialTaskPath:     taskPath,
		Team:                "production",
		Raw:                 map[string]any{"Campaign": "Run2018A-UL"},
	}

	h := &harness{
		workflows: &fakeWorkflows{
			workflows: map[string]*domain.Workflow{"orig_wf": source, recoveryName: recovery},
			footprint: map[string][]string{taskPath: {"T2_CH_CERN", "T2_US_MIT"}},
		},
		creator:  &fakeCreator{name: recoveryName},
		assigner: &fakeAssigner{ok: true},
		recorder: &fakeRecorder{},
	}
	h.orch = New(
		Endpoints{Production: prodURL, Testbed: testbedURL},
		h.workflows, fakeSites{}, h.creator, h.assigner,
		WithRecorder(h.recorder),
		WithRand(rand.New(rand.NewPCG(1, 1))),
	)
	return h
}

func statesOf(req *RecoveryRequest) []State {
	out := []State{StateInitial}
	for _, t := range req.History {
		out = append(out, t.To)
	}
	return out
}

// =============================================================================
// State machine
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInitial, StateRecoveryCreated, true},
		{StateInitial, StateAssigned, false},
		{StateRecoveryCreated, StateAssigned, true},
		{StateRecoveryCreated, StateFailed, true},
		{StateAssigned, StateFailed, false},
		{StateFailed, StateRecoveryCreated, false},
		{StateDryRun, StateAssigned, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for _, s := range []State{StateAssigned, StateFailed, StateDryRun} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestRecoveryNameSetOnce(t *testing.T) {
	req := newRequest(taskPath, domain.Options{})
	if err := req.setRecoveryName("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := req.setRecoveryName("b"); err == nil {
		t.Error("expected error on second set")
	}
}

// =============================================================================
// Full cycle
// =============================================================================

func TestRunFullCycle(t *testing.T) {
	h := newHarness()
	opts := domain.Options{MemoryPolicy: "+500", UseGlobalRedirector: true, SplittingPolicy: "2x"}

	req, err := h.orch.RunFullCycle(context.Background(), taskPath, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.State != StateAssigned {
		t.Errorf("state = %s, want assigned", req.State)
	}
	want := []State{StateInitial, StateRecoveryCreated, StateAssigned}
	if got := statesOf(req); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("history = %v, want %v", got, want)
	}
	if req.WorkflowName != "orig_wf" || req.RecoveryName != recoveryName {
		t.Errorf("workflow=%s recovery=%s", req.WorkflowName, req.RecoveryName)
	}

	if h.creator.baseURL != prodURL {
		t.Errorf("baseURL = %s", h.creator.baseURL)
	}
	wantOverrides := domain.RecoveryOverrides{Memory: 2500, TrustSitelists: true, Split: "2x"}
	if h.creator.overrides != wantOverrides {
		t.Errorf("overrides = %+v, want %+v", h.creator.overrides, wantOverrides)
	}

	if h.assigner.calls != 1 || h.assigner.team != "production" {
		t.Errorf("assign calls=%d team=%s", h.assigner.calls, h.assigner.team)
	}
	if fmt.Sprint(h.assigner.params.SiteWhitelist) != "[T2_CH_CERN]" {
		t.Errorf("SiteWhitelist = %v", h.assigner.params.SiteWhitelist)
	}
	if !h.assigner.params.TrustSitelists {
		t.Error("expected TrustSitelists")
	}

	if len(h.recorder.runs) != 2 || h.recorder.last().State != string(StateAssigned) {
		t.Errorf("recorded runs = %+v", h.recorder.runs)
	}
}

func TestRunFullCycle_CreationReturnsNothing(t *testing.T) {
	h := newHarness()
	h.creator.name = ""

	req, err := h.orch.RunFullCycle(context.Background(), taskPath, domain.Options{})
	if !errors.Is(err, domain.ErrRecoveryCreationFailed) {
		t.Fatalf("expected ErrRecoveryCreationFailed, got %v", err)
	}
	if req.State != StateFailed || req.RecoveryName != "" {
		t.Errorf("state=%s recovery=%q", req.State, req.RecoveryName)
	}
	if h.assigner.calls != 0 {
		t.Error("assignment must not run after failed creation")
	}
}

func TestRunFullCycle_AssignmentRejectedKeepsRecovery(t *testing.T) {
	h := newHarness()
	h.assigner.ok = false

	req, err := h.orch.RunFullCycle(context.Background(), taskPath, domain.Options{})
	if !errors.Is(err, domain.ErrAssignmentFailed) {
		t.Fatalf("expected ErrAssignmentFailed, got %v", err)
	}
	if req.State != StateFailed {
		t.Errorf("state = %s", req.State)
	}
	run := h.recorder.last()
	if run.RecoveryName != recoveryName || run.Error == "" {
		t.Errorf("ledger lost the created recovery: %+v", run)
	}
}

func TestRunFullCycle_ApprovalFailureKeepsRecovery(t *testing.T) {
	h := newHarness()
	h.creator.err = errors.New("set status: http 500")

	req, err := h.orch.RunFullCycle(context.Background(), taskPath, domain.Options{})
	if !errors.Is(err, domain.ErrRecoveryCreationFailed) {
		t.Fatalf("expected ErrRecoveryCreationFailed, got %v", err)
	}
	if req.State != StateFailed || req.RecoveryName != recoveryName {
		t.Errorf("state=%s recovery=%q", req.State, req.RecoveryName)
	}
	if h.assigner.calls != 0 {
		t.Error("assignment must not run after failed creation")
	}
	run := h.recorder.last()
	if run.RecoveryName != recoveryName || run.State != string(StateFailed) {
		t.Errorf("ledger lost the created recovery: %+v", run)
	}

	// The recorded recovery can be finished later.
	h.creator.err = nil
	done, err := h.orch.AssignExisting(context.Background(), run.RecoveryName, domain.Options{})
	if err != nil || done.State != StateAssigned {
		t.Fatalf("AssignExisting = (%v, %v)", done.State, err)
	}
}

func TestRunFullCycle_InvalidTaskPath(t *testing.T) {
	h := newHarness()
	_, err := h.orch.RunFullCycle(context.Background(), "not-a-path", domain.Options{})
	if !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
	if h.creator.calls != 0 {
		t.Error("creation must not run")
	}
}

func TestRunFullCycle_UnknownWorkflow(t *testing.T) {
	h := newHarness()
	_, err := h.orch.RunFullCycle(context.Background(), "/missing/Task1", domain.Options{})
	if !errors.Is(err, domain.ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

// =============================================================================
// Testbed modes
// =============================================================================

func TestTestbedMode_DryRunBeforeCreation(t *testing.T) {
	h := newHarness()
	req, err := h.orch.RunFullCycle(context.Background(), taskPath, domain.Options{TestbedMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.State != StateDryRun {
		t.Errorf("state = %s, want dry_run", req.State)
	}
	if h.creator.calls != 0 || h.assigner.calls != 0 {
		t.Error("no mutating collaborator may be called in testbed mode")
	}
}

func TestTestbedAssignOnly_DryRunBeforeAssignment(t *testing.T) {
	h := newHarness()
	req, err := h.orch.RunFullCycle(context.Background(), taskPath, domain.Options{TestbedAssignOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.State != StateDryRun {
		t.Errorf("state = %s, want dry_run", req.State)
	}
	if h.creator.baseURL != testbedURL {
		t.Errorf("baseURL = %s, want testbed", h.creator.baseURL)
	}
	if h.assigner.calls != 0 {
		t.Error("assignment must not run in testbed assign mode")
	}
	if req.Parameters == nil || req.Parameters.Execute {
		t.Errorf("expected built parameters with execute=false, got %+v", req.Parameters)
	}
}

// =============================================================================
// Partial entry points
// =============================================================================

func TestCreateRecoveryOnly(t *testing.T) {
	h := newHarness()
	req, err := h.orch.CreateRecoveryOnly(context.Background(), taskPath, domain.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.State != StateRecoveryCreated || req.RecoveryName != recoveryName {
		t.Errorf("state=%s recovery=%s", req.State, req.RecoveryName)
	}
	if h.assigner.calls != 0 {
		t.Error("assignment must not run")
	}
}

func TestAssignExisting(t *testing.T) {
	h := newHarness()
	req, err := h.orch.AssignExisting(context.Background(), recoveryName, domain.Options{Team: "relval"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.State != StateAssigned || h.creator.calls != 0 {
		t.Errorf("state=%s creator calls=%d", req.State, h.creator.calls)
	}
	if h.assigner.team != "relval" {
		t.Errorf("team = %s", h.assigner.team)
	}
	if req.WorkflowName != "orig_wf" {
		t.Errorf("WorkflowName = %s", req.WorkflowName)
	}
}

func TestAssignExisting_Tier1FallbackCounted(t *testing.T) {
	h := newHarness()
	tier1 := metrics.FallbackTotal.WithLabelValues("tier1")
	before := testutil.ToFloat64(tier1)

	req, err := h.orch.AssignExisting(context.Background(), recoveryName, domain.Options{ExcludeSites: []string{"T2_CH_CERN"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(req.Parameters.SiteWhitelist) != "[T1_US_FNAL]" {
		t.Errorf("SiteWhitelist = %v, want the tier-1 fallback", req.Parameters.SiteWhitelist)
	}
	if got := testutil.ToFloat64(tier1) - before; got != 1 {
		t.Errorf("tier1 fallbacks counted = %v, want 1", got)
	}
}

func TestAssignExisting_ValidatesState(t *testing.T) {
	h := newHarness()
	h.workflows.workflows[recoveryName].Status = domain.StatusNew

	req, err := h.orch.AssignExisting(context.Background(), recoveryName, domain.Options{})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if req.State != StateFailed {
		t.Errorf("state = %s", req.State)
	}
}

func TestAssignExisting_ExceptionPinsFootprint(t *testing.T) {
	h := newHarness()
	opts := domain.Options{
		ExcludeSites:   []string{"T2_CH_CERN"},
		ExceptionRules: map[string]string{"Campaign": "UL"},
	}

	_, err := h.orch.AssignExisting(context.Background(), recoveryName, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// exclusion alone would fall back to FNAL; the exception restores the footprint
	if fmt.Sprint(h.assigner.params.SiteWhitelist) != "[T2_CH_CERN]" {
		t.Errorf("SiteWhitelist = %v", h.assigner.params.SiteWhitelist)
	}
}
