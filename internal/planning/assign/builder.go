// Package assign builds the parameter set used to assign a recovery workflow.
package assign

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/planning/lineage"
	"github.com/vietddude/autoacdc/internal/planning/resources"
	"github.com/vietddude/autoacdc/internal/planning/sites"
)

const (
	ActivityProduction   = "production"
	ActivityReprocessing = "reprocessing"
)

// WorkflowReader is the read side of the workflow-management service.
type WorkflowReader interface {
	Fetch(ctx context.Context, name string) (*domain.Workflow, error)
	// RecoveryFootprint returns, per task path, the storage elements the workflow
	// still has work for.
	RecoveryFootprint(ctx context.Context, workflow, task string) (map[string][]string, error)
}

// Builder assembles assignment parameters. It holds no per-run state: parameters
// are recomputed on every call.
type Builder struct {
	reader WorkflowReader
}

func NewBuilder(reader WorkflowReader) *Builder {
	return &Builder{reader: reader}
}

// Footprint returns the compute sites the original workflow has recovery work at
// for the recovery's initial task, restricted to sites the catalog knows.
func (b *Builder) Footprint(ctx context.Context, recovery *domain.Workflow, catalog *sites.Catalog) ([]string, error) {
	if recovery.OriginalRequestName == "" {
		return nil, fmt.Errorf("%w: %s has no OriginalRequestName", domain.ErrMissingLineage, recovery.Name)
	}

	where, err := b.reader.RecoveryFootprint(ctx, recovery.OriginalRequestName, recovery.InitialTaskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recovery footprint of %s: %w", recovery.OriginalRequestName, err)
	}

	set := make(map[string]struct{})
	for _, se := range where[recovery.InitialTaskPath] {
		ce := catalog.SEToCE(se)
		if catalog.Exists(ce) {
			set[ce] = struct{}{}
		}
	}
	return domain.SortedKeys(set), nil
}

// Build computes the assignment parameters for a recovery workflow.
func (b *Builder) Build(
	ctx context.Context,
	recovery *domain.Workflow,
	opts domain.Options,
	selector *sites.Selector,
) (*domain.AssignmentParameters, error) {
	if err := opts.Validate(resources.CheckPolicy); err != nil {
		return nil, err
	}

	if !opts.TestbedAssignOnly {
		if !recovery.IsResubmission() {
			return nil, fmt.Errorf("%w: %s has request type %q, want %q",
				domain.ErrInvalidState, recovery.Name, recovery.RequestType, domain.RequestTypeResubmission)
		}
		if recovery.Status != domain.StatusAssignmentApproved {
			return nil, fmt.Errorf("%w: %s has status %q, want %q",
				domain.ErrInvalidState, recovery.Name, recovery.Status, domain.StatusAssignmentApproved)
		}
	}

	original, ancestor, err := lineage.Resolve(ctx, b.reader, recovery)
	if err != nil {
		return nil, err
	}
	if ancestor == nil {
		return nil, fmt.Errorf("%w: no ancestor for %s", domain.ErrMissingLineage, recovery.Name)
	}

	taskchain := recovery.IsTaskChain() || ancestor.IsTaskChain()

	era, procString := ancestor.AcquisitionEra, ancestor.ProcessingString
	if era == nil || procString == nil {
		return nil, fmt.Errorf("%w: %s has no AcquisitionEra or ProcessingString", domain.ErrInvalidLineage, ancestor.Name)
	}
	if taskchain && (!era.IsPerTask() || !procString.IsPerTask()) {
		return nil, fmt.Errorf("%w: task chain %s needs per-task AcquisitionEra and ProcessingString",
			domain.ErrInvalidLineage, ancestor.Name)
	}

	lfn, err := resolveLFNBase(opts, recovery, ancestor)
	if err != nil {
		return nil, err
	}

	footprint, err := b.Footprint(ctx, recovery, selector.Catalog())
	if err != nil {
		return nil, err
	}
	sel, err := selector.SelectWithFallback(footprint, opts.IncludeSites, opts.ExcludeSites)
	if err != nil {
		return nil, err
	}

	params := &domain.AssignmentParameters{
		SiteWhitelist:     sel.Sites,
		MergedLFNBase:     lfn,
		Dashboard:         resolveActivity(opts, taskchain),
		ProcessingVersion: ancestor.ProcessingVersion,
		Execute:           !opts.TestbedAssignOnly,
		AcquisitionEra:    era,
		ProcessingString:  procString,
		TrustSitelists:    opts.UseGlobalRedirector || sel.ForceRedirector,
		TrustPUSitelists:  resolveSecondaryRedirector(opts, ancestor),
		MaxMergeEvents:    opts.MaxMergeEventsPerJob,
		LumisPerJob:       opts.LumisPerJob,
		Team:              recovery.Team,
	}
	if opts.Team != "" {
		params.Team = opts.Team
	}

	if opts.UseNonCustodialReplica {
		disk, err := selector.RandomTier1(opts.ExcludeSites, true)
		if err != nil {
			return nil, err
		}
		params.NonCustodialSites = []string{disk}
	}

	if err := applyResources(params, opts, taskchain, recovery, original); err != nil {
		return nil, err
	}

	slog.Info("Built assignment parameters",
		"workflow", recovery.Name,
		"taskchain", taskchain,
		"sites", params.SiteWhitelist,
		"fallback", sel.FellBack,
		"trust_sitelists", params.TrustSitelists,
	)
	return params, nil
}

func resolveLFNBase(opts domain.Options, recovery, ancestor *domain.Workflow) (string, error) {
	switch {
	case opts.OutputLFNBase != "":
		return opts.OutputLFNBase, nil
	case recovery.MergedLFNBase != "":
		return recovery.MergedLFNBase, nil
	case ancestor.MergedLFNBase != "":
		return ancestor.MergedLFNBase, nil
	}
	return "", fmt.Errorf("%w: set an output LFN base for %s", domain.ErrMissingLFNBase, recovery.Name)
}

func resolveActivity(opts domain.Options, taskchain bool) string {
	switch {
	case opts.DashboardActivity != "":
		return opts.DashboardActivity
	case taskchain:
		return ActivityProduction
	}
	return ActivityReprocessing
}

func resolveSecondaryRedirector(opts domain.Options, ancestor *domain.Workflow) bool {
	if opts.UseSecondaryGlobalRedirector {
		return true
	}
	if ancestor.TrustPUSitelists != nil {
		return *ancestor.TrustPUSitelists
	}
	return false
}

// applyResources fills the memory, multicore and time-per-event overrides.
func applyResources(params *domain.AssignmentParameters, opts domain.Options, taskchain bool, recovery, original *domain.Workflow) error {
	if !taskchain {
		if mem, ok, err := resources.ComputeMemory(original.Memory, opts.MemoryPolicy); err != nil {
			return err
		} else if ok {
			params.Memory = domain.Scalar(mem)
		}
		if opts.MulticorePolicy != "" {
			cores, err := resources.CoreCount(opts.MulticorePolicy)
			if err != nil {
				return err
			}
			params.Multicore = domain.Scalar(cores)
		}
		return nil
	}

	tasks := recovery.Tasks
	if len(tasks) == 0 {
		tasks = original.Tasks
	}

	if opts.MulticorePolicy != "" {
		mc, err := resources.MulticoreOverrides(tasks, opts.MulticorePolicy, opts.MemoryPolicy)
		if err != nil {
			return err
		}
		params.Multicore = domain.ByTask(mc.Cores)
		params.Memory = domain.ByTask(mc.Memory)
		params.TimePerEvent = domain.ByTask(mc.TimePerEvent)
		return nil
	}
	if opts.MemoryPolicy != "" {
		mem, err := resources.MemoryOverrides(tasks, opts.MemoryPolicy)
		if err != nil {
			return err
		}
		params.Memory = domain.ByTask(mem)
	}
	return nil
}

