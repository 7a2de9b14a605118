package cli

import (
	"github.com/spf13/cobra"

	"github.com/vietddude/autoacdc/internal/core/domain"
)

// optionFlags mirrors domain.Options on the command line.
type optionFlags struct {
	testbed         bool
	testbedAssign   bool
	includeSites    []string
	excludeSites    []string
	xrootd          bool
	secondaryXrootd bool
	memory          string
	multicore       string
	splitting       string
	team            string
	nonCustodial    bool
	activity        string
	lfn             string
	lumisPerJob     int
	maxMergeEvents  int
	exceptions      map[string]string

	cmd *cobra.Command
}

func bindOptionFlags(cmd *cobra.Command) *optionFlags {
	f := &optionFlags{cmd: cmd}
	flags := cmd.Flags()
	flags.BoolVar(&f.testbed, "testbed", false, "log the recovery that would be created, submit nothing")
	flags.BoolVar(&f.testbedAssign, "testbed-assign", false, "create on the testbed and log the assignment instead of sending it")
	flags.StringSliceVar(&f.includeSites, "include-sites", nil, "sites added to the whitelist")
	flags.StringSliceVar(&f.excludeSites, "exclude-sites", nil, "sites removed from the whitelist")
	flags.BoolVar(&f.xrootd, "xrootd", false, "read input remotely through the global redirector")
	flags.BoolVar(&f.secondaryXrootd, "secondary-xrootd", false, "read pileup remotely through the global redirector")
	flags.StringVar(&f.memory, "memory", "", `memory policy: "N", "+N" or "+N%", optionally prefixed by "taskA,taskB:"`)
	flags.StringVar(&f.multicore, "multicore", "", `core count, optionally prefixed by "taskA,taskB:"`)
	flags.StringVar(&f.splitting, "splitting", "", `splitting policy: "Nx", "Same" or "max"`)
	flags.StringVar(&f.team, "team", "", "team the recovery is assigned to")
	flags.BoolVar(&f.nonCustodial, "non-custodial", false, "request a copy of the output at a tier-1 disk endpoint")
	flags.StringVar(&f.activity, "activity", "", "dashboard activity")
	flags.StringVar(&f.lfn, "lfn", "", "merged LFN base of the output")
	flags.IntVar(&f.lumisPerJob, "lumis-per-job", 0, "lumi sections per job")
	flags.IntVar(&f.maxMergeEvents, "max-merge-events", 0, "maximum events per merge job")
	flags.StringToStringVar(&f.exceptions, "exception", nil, "descriptor key=substring marking a workflow as an exception")
	return f
}

func (f *optionFlags) options() domain.Options {
	opts := domain.Options{
		TestbedMode:                  f.testbed,
		TestbedAssignOnly:            f.testbedAssign,
		IncludeSites:                 f.includeSites,
		ExcludeSites:                 f.excludeSites,
		UseGlobalRedirector:          f.xrootd,
		UseSecondaryGlobalRedirector: f.secondaryXrootd,
		MemoryPolicy:                 f.memory,
		MulticorePolicy:              f.multicore,
		SplittingPolicy:              f.splitting,
		Team:                         f.team,
		UseNonCustodialReplica:       f.nonCustodial,
		DashboardActivity:            f.activity,
		OutputLFNBase:                f.lfn,
	}
	if len(f.exceptions) > 0 {
		opts.ExceptionRules = f.exceptions
	}
	if f.cmd.Flags().Changed("lumis-per-job") {
		n := f.lumisPerJob
		opts.LumisPerJob = &n
	}
	if f.cmd.Flags().Changed("max-merge-events") {
		n := f.maxMergeEvents
		opts.MaxMergeEventsPerJob = &n
	}
	return opts
}
