package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show your agent performance (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.client.MyStats(cmd.Context())
			if err != nil {
				return err
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), stats); done {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "assigned tickets:       %d\n", stats.AssignedTickets)
			fmt.Fprintf(out, "resolved today:         %d\n", stats.ResolvedToday)
			fmt.Fprintf(out, "average first response: %.1fh\n", stats.AverageResponseTime)
			fmt.Fprintf(out, "satisfaction rate:      %.0f%%\n", stats.SatisfactionRate)
			return nil
		},
	}
}
