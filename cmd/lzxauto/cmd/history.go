package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/lzxauto/internal/config"
	"github.com/Ning0612/lzxauto/internal/progress"
	"github.com/Ning0612/lzxauto/internal/service"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show recent sessions",
	Long: `Show recent sessions, newest first. With a path only sessions over
that root are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.NewCompactService(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		var root string
		if len(args) > 0 {
			root = config.ExpandPath(args[0])
		}

		records, err := svc.History(root, historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tDURATION\tSTATUS\tVISITED\tCOMPACTED\tUNCHANGED\tFAILED\tSAVED\tROOT")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
				r.StartTime.Local().Format("2006-01-02 15:04"),
				r.EndTime.Sub(r.StartTime).Round(time.Second),
				r.Status,
				r.Visited,
				r.Processed,
				r.SkippedUnchanged,
				r.Failed,
				progress.FormatBytes(r.SavedBytes),
				r.Root)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of sessions to show")
	rootCmd.AddCommand(historyCmd)
}
