package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/autoacdc/internal/control"
	"github.com/vietddude/autoacdc/internal/core/domain"
	"github.com/vietddude/autoacdc/internal/infra/storage"
)

var (
	runsState   string
	runsLimit   int
	runsPending bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded recovery runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			var runs []domain.RecoveryRun
			var err error
			if runsPending {
				runs, err = app.Ledger.Pending(ctx)
			} else {
				runs, err = app.Ledger.List(ctx, storage.RunFilter{State: runsState, Limit: runsLimit})
			}
			if err != nil {
				return err
			}
			printRuns(runs)
			return nil
		})
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsState, "state", "", "only runs in this state")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum number of runs")
	runsCmd.Flags().BoolVar(&runsPending, "pending", false, "only recoveries created but never assigned")
	rootCmd.AddCommand(runsCmd)
}

func printRuns(runs []domain.RecoveryRun) {
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Run", "Task", "Recovery", "State", "Team", "Sites", "Updated")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.TaskName,
			r.RecoveryName,
			r.State,
			r.Team,
			strings.Join(r.SiteWhitelist, ","),
			r.UpdatedAt.Format(time.RFC3339),
		)
	}
	table.Render()
	fmt.Printf("\nTotal runs: %d\n", len(runs))
}
