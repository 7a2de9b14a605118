package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/autoacdc/internal/control"
)

var campaignDetail bool

var campaignCmd = &cobra.Command{
	Use:   "campaign <name>",
	Short: "List the workflows of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			if !campaignDetail {
				names, err := app.Workflows.WorkflowsByCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			}

			wfs, err := app.Workflows.WorkflowDetailsByCampaign(ctx, args[0])
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Workflow", "Type", "Status", "Team")
			for _, wf := range wfs {
				table.Append(wf.Name, string(wf.RequestType), string(wf.Status), wf.Team)
			}
			table.Render()
			fmt.Printf("\nTotal workflows: %d\n", len(wfs))
			return nil
		})
	},
}

func init() {
	campaignCmd.Flags().BoolVar(&campaignDetail, "detail", false, "show type, status and team of each workflow")
	rootCmd.AddCommand(campaignCmd)
}
