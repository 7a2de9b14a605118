package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/autoacdc/internal/control"
	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/core/orchestrator"
)

type recoverFunc func(ctx context.Context, app *control.App, name string, opts domain.Options) (*orchestrator.RecoveryRequest, error)

func newRecoverCmd(use, short string, fn recoverFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
	}
	flags := bindOptionFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			opts := app.Options(flags.options())
			var results []*orchestrator.RecoveryRequest
			failed := 0
			for _, name := range args {
				req, err := fn(ctx, app, name, opts)
				if err != nil {
					failed++
				}
				if req != nil {
					if req.TaskName == "" {
						req.TaskName = name
					}
					results = append(results, req)
				}
				if ctx.Err() != nil {
					break
				}
			}
			printRequests(results)
			if failed > 0 {
				return fmt.Errorf("%d of %d recoveries failed", failed, len(args))
			}
			return nil
		})
	}
	return cmd
}

var runCmd = newRecoverCmd("run <task-path>...", "Create and assign a recovery for each failed task",
	func(ctx context.Context, app *control.App, task string, opts domain.Options) (*orchestrator.RecoveryRequest, error) {
		return app.Orchestrator.RunFullCycle(ctx, task, opts)
	})

var createCmd = newRecoverCmd("create <task-path>...", "Create a recovery for each failed task without assigning it",
	func(ctx context.Context, app *control.App, task string, opts domain.Options) (*orchestrator.RecoveryRequest, error) {
		return app.Orchestrator.CreateRecoveryOnly(ctx, task, opts)
	})

var assignCmd = newRecoverCmd("assign <recovery>...", "Assign recovery workflows that were created earlier",
	func(ctx context.Context, app *control.App, recovery string, opts domain.Options) (*orchestrator.RecoveryRequest, error) {
		return app.Orchestrator.AssignExisting(ctx, recovery, opts)
	})

func init() {
	rootCmd.AddCommand(runCmd, createCmd, assignCmd)
}

func printRequests(reqs []*orchestrator.RecoveryRequest) {
	if len(reqs) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Task", "Recovery", "State", "Sites", "Error")
	for _, req := range reqs {
		var sites string
		if req.Parameters != nil {
			sites = strings.Join(req.Parameters.SiteWhitelist, ",")
		}
		var errMsg string
		if req.Err != nil {
			errMsg = req.Err.Error()
		}
		table.Append(req.TaskName, req.RecoveryName, string(req.State), sites, errMsg)
	}
	table.Render()
}
