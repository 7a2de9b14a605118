// Package orchestrator drives a recovery through creation and assignment.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/metrics"
	"github.com/vietddude/autoacdc/internal/planning/assign"
	"github.com/vietddude/autoacdc/internal/planning/exceptions"
	"github.com/vietddude/autoacdc/internal/planning/resources"
	"github.com/vietddude/autoacdc/internal/planning/sites"
)

// WorkflowInfoProvider reads workflow descriptors and recovery footprints.
type WorkflowInfoProvider interface {
	Fetch(ctx context.Context, name string) (*domain.Workflow, error)
	RecoveryFootprint(ctx context.Context, workflow, task string) (map[string][]string, error)
}

// RecoveryCreationService creates a recovery workflow for a failed task and
// returns its name. An empty name means nothing was created.
type RecoveryCreationService interface {
	Submit(
		ctx context.Context,
		baseURL, task string,
		source *domain.Workflow,
		overrides domain.RecoveryOverrides,
	) (string, error)
}

// AssignmentService assigns a workflow to a team.
type AssignmentService interface {
	Assign(ctx context.Context, baseURL, name, team string, params *domain.AssignmentParameters) (bool, error)
}

// RunRecorder stores the outcome of every transition.
type RunRecorder interface {
	Record(ctx context.Context, run domain.RecoveryRun) error
}

// Endpoints are the base URLs of the workflow-management service.
type Endpoints struct {
	Production string
	Testbed    string
}

// Orchestrator owns the create and assign phases. It keeps no state between runs.
type Orchestrator struct {
	workflows WorkflowInfoProvider
	sites     sites.Provider
	creator   RecoveryCreationService
	assigner  AssignmentService
	recorder  RunRecorder

	builder    *assign.Builder
	exceptions *exceptions.Engine
	endpoints  Endpoints
	rng        *rand.Rand
	log        *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records every transition in a run ledger.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithRand fixes the random source used for tier-1 fallbacks.
func WithRand(rng *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = rng }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func New(
	endpoints Endpoints,
	workflows WorkflowInfoProvider,
	siteProvider sites.Provider,
	creator RecoveryCreationService,
	assigner AssignmentService,
	opts ...Option,
) *Orchestrator {
	builder := assign.NewBuilder(workflows)
	o := &Orchestrator{
		workflows:  workflows,
		sites:      siteProvider,
		creator:    creator,
		assigner:   assigner,
		builder:    builder,
		exceptions: exceptions.NewEngine(builder),
		endpoints:  endpoints,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BaseURL returns the service URL for the options' mode.
func (o *Orchestrator) BaseURL(opts domain.Options) string {
	if opts.Testbed() {
		return o.endpoints.Testbed
	}
	return o.endpoints.Production
}

// RunFullCycle creates a recovery for the task and assigns it.
func (o *Orchestrator) RunFullCycle(ctx context.Context, taskName string, opts domain.Options) (*RecoveryRequest, error) {
	req, err := o.CreateRecoveryOnly(ctx, taskName, opts)
	if err != nil || req.State != StateRecoveryCreated {
		return req, err
	}
	return req, o.assign(ctx, req)
}

// CreateRecoveryOnly creates a recovery workflow without assigning it.
func (o *Orchestrator) CreateRecoveryOnly(ctx context.Context, taskName string, opts domain.Options) (*RecoveryRequest, error) {
	req := newRequest(taskName, opts)
	if err := opts.Validate(resources.CheckPolicy); err != nil {
		return req, o.fail(ctx, req, "create", err)
	}

	wfName, err := domain.WorkflowNameFromTask(taskName)
	if err != nil {
		return req, o.fail(ctx, req, "create", err)
	}
	req.WorkflowName = wfName

	source, err := o.workflows.Fetch(ctx, wfName)
	if err != nil {
		return req, o.fail(ctx, req, "create", err)
	}
	req.Source = source

	return req, o.create(ctx, req)
}

// AssignExisting assigns a recovery workflow that was created earlier.
func (o *Orchestrator) AssignExisting(ctx context.Context, recoveryName string, opts domain.Options) (*RecoveryRequest, error) {
	req := newRequest("", opts)
	if err := req.setRecoveryName(recoveryName); err != nil {
		return req, err
	}
	if err := req.transition(StateRecoveryCreated, "existing recovery supplied"); err != nil {
		return req, err
	}
	return req, o.assign(ctx, req)
}

func (o *Orchestrator) create(ctx context.Context, req *RecoveryRequest) error {
	start := time.Now()
	defer func() { metrics.PhaseDuration.WithLabelValues("create").Observe(time.Since(start).Seconds()) }()

	overrides, err := recoveryOverrides(req.Options, req.Source)
	if err != nil {
		return o.fail(ctx, req, "create", err)
	}
	o.log.Info("Recovery will be submitted",
		"task", req.TaskName,
		"memory", overrides.Memory,
		"multicore", overrides.Multicore,
		"xrootd", overrides.TrustSitelists,
		"split", overrides.Split,
	)

	if req.Options.TestbedMode {
		o.log.Info("Testbed mode, not submitting recovery", "task", req.TaskName)
		return o.finish(ctx, req, "create", StateDryRun, "testbed mode")
	}

	name, err := o.creator.Submit(ctx, o.BaseURL(req.Options), req.TaskName, req.Source, overrides)
	if name != "" {
		// The recovery exists remotely even if a later step failed; keep it
		// on the record so it shows up as pending.
		if nameErr := req.setRecoveryName(name); nameErr != nil {
			return o.fail(ctx, req, "create", nameErr)
		}
	}
	if err == nil && name == "" {
		err = fmt.Errorf("no workflow returned for %s", req.TaskName)
	}
	if err != nil {
		return o.fail(ctx, req, "create", fmt.Errorf("%w: %w", domain.ErrRecoveryCreationFailed, err))
	}
	o.log.Info("Submitted recovery", "recovery", name)
	return o.finish(ctx, req, "create", StateRecoveryCreated, "recovery submitted")
}

func (o *Orchestrator) assign(ctx context.Context, req *RecoveryRequest) error {
	start := time.Now()
	defer func() { metrics.PhaseDuration.WithLabelValues("assign").Observe(time.Since(start).Seconds()) }()

	recovery, err := o.workflows.Fetch(ctx, req.RecoveryName)
	if err != nil {
		return o.fail(ctx, req, "assign", err)
	}
	if req.WorkflowName == "" {
		req.WorkflowName = recovery.OriginalRequestName
	}

	catalog, err := sites.LoadCatalog(ctx, o.sites)
	if err != nil {
		return o.fail(ctx, req, "assign", err)
	}
	selector := sites.NewSelector(catalog, o.rng)

	params, err := o.builder.Build(ctx, recovery, req.Options, selector)
	if err != nil {
		return o.fail(ctx, req, "assign", err)
	}
	if params, err = o.exceptions.Apply(ctx, params, recovery, req.Options.ExceptionRules, selector); err != nil {
		return o.fail(ctx, req, "assign", err)
	}
	req.Parameters = params
	if n := selector.Fallbacks(); n > 0 {
		metrics.FallbackTotal.WithLabelValues("tier1").Add(float64(n))
	}
	if params.TrustSitelists && !req.Options.UseGlobalRedirector {
		metrics.FallbackTotal.WithLabelValues("redirector").Inc()
	}

	if req.Options.TestbedAssignOnly {
		o.log.Info("Testbed assign mode, not assigning", "recovery", req.RecoveryName, "params", params)
		return o.finish(ctx, req, "assign", StateDryRun, "testbed assign mode")
	}

	ok, err := o.assigner.Assign(ctx, o.BaseURL(req.Options), req.RecoveryName, params.Team, params)
	if err == nil && !ok {
		err = fmt.Errorf("assignment of %s rejected", req.RecoveryName)
	}
	if err != nil {
		return o.fail(ctx, req, "assign", fmt.Errorf("%w: %w", domain.ErrAssignmentFailed, err))
	}

	o.log.Info("Assigned recovery", "recovery", req.RecoveryName, "team", params.Team, "sites", params.SiteWhitelist)
	return o.finish(ctx, req, "assign", StateAssigned, "assigned")
}

func (o *Orchestrator) finish(ctx context.Context, req *RecoveryRequest, phase string, to State, reason string) error {
	if err := req.transition(to, reason); err != nil {
		return err
	}
	metrics.PhaseTotal.WithLabelValues(phase, string(to)).Inc()
	o.record(ctx, req)
	return nil
}

// fail moves the request to Failed and returns cause. A recovery that was already
// created keeps its name on the record so it can be assigned later.
func (o *Orchestrator) fail(ctx context.Context, req *RecoveryRequest, phase string, cause error) error {
	req.Err = cause
	if err := req.transition(StateFailed, cause.Error()); err != nil {
		o.log.Error("Failed to record failure", "run_id", req.RunID, "error", err)
	}
	metrics.PhaseTotal.WithLabelValues(phase, string(StateFailed)).Inc()
	o.log.Error("Recovery phase failed", "phase", phase, "task", req.TaskName, "recovery", req.RecoveryName, "error", cause)
	o.record(ctx, req)
	return cause
}

func (o *Orchestrator) record(ctx context.Context, req *RecoveryRequest) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, req.Run()); err != nil {
		o.log.Warn("Failed to record run", "run_id", req.RunID, "error", err)
	}
}

// recoveryOverrides computes the creation-time changes. Task chains get their
// per-task memory at assignment, so only single-task workflows carry a memory override.
func recoveryOverrides(opts domain.Options, source *domain.Workflow) (domain.RecoveryOverrides, error) {
	out := domain.RecoveryOverrides{
		Multicore:      opts.MulticorePolicy,
		TrustSitelists: opts.UseGlobalRedirector,
		Split:          opts.SplittingPolicy,
	}
	if source.IsTaskChain() {
		return out, nil
	}
	mem, ok, err := resources.ComputeMemory(source.Memory, opts.MemoryPolicy)
	if err != nil {
		return out, err
	}
	if ok {
		out.Memory = mem
	}
	return out, nil
}
