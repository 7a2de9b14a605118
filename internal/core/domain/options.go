package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var splittingPattern = regexp.MustCompile(`^([1-9][0-9]*x|Same|max)$`)

// Options controls how a recovery is created and assigned.
type Options struct {
	TestbedMode       bool
	TestbedAssignOnly bool

	IncludeSites []string
	ExcludeSites []string

	UseGlobalRedirector          bool
	UseSecondaryGlobalRedirector bool

	// MemoryPolicy is "N", "+N" or "+N%", optionally prefixed by "taskA,taskB:".
	MemoryPolicy string
	// MulticorePolicy is "N", optionally prefixed by "taskA,taskB:".
	MulticorePolicy string
	// SplittingPolicy is "Nx", "Same" or "max".
	SplittingPolicy string

	Team                   string
	UseNonCustodialReplica bool
	DashboardActivity      string
	OutputLFNBase          string
	LumisPerJob            *int
	MaxMergeEventsPerJob   *int

	// ExceptionRules maps a descriptor key to the substring that marks the workflow as an exception.
	ExceptionRules map[string]string
}

// Testbed reports whether any testbed mode is active.
func (o Options) Testbed() bool {
	return o.TestbedMode || o.TestbedAssignOnly
}

// Validate checks the shape of site lists and policy strings.
// Policy grammar is checked by the resources package through policyCheck to avoid an import cycle.
func (o Options) Validate(policyCheck func(string) error) error {
	for _, list := range [][]string{o.IncludeSites, o.ExcludeSites} {
		for _, s := range list {
			if s == "" || strings.ContainsAny(s, ", \t\n") {
				return fmt.Errorf("%w: site name %q", ErrInvalidOption, s)
			}
		}
	}
	if policyCheck != nil {
		for _, p := range []string{o.MemoryPolicy, o.MulticorePolicy} {
			if p == "" {
				continue
			}
			if err := policyCheck(p); err != nil {
				return err
			}
		}
	}
	if o.MulticorePolicy != "" && strings.Contains(o.MulticorePolicy, "+") {
		return fmt.Errorf("%w: multicore policy must be an absolute value: %q", ErrInvalidOption, o.MulticorePolicy)
	}
	if o.SplittingPolicy != "" && !splittingPattern.MatchString(o.SplittingPolicy) {
		return fmt.Errorf("%w: splitting policy %q", ErrInvalidOption, o.SplittingPolicy)
	}
	if o.LumisPerJob != nil && *o.LumisPerJob <= 0 {
		return fmt.Errorf("%w: lumis per job must be positive", ErrInvalidOption)
	}
	if o.MaxMergeEventsPerJob != nil && *o.MaxMergeEventsPerJob <= 0 {
		return fmt.Errorf("%w: max merge events must be positive", ErrInvalidOption)
	}
	return nil
}
