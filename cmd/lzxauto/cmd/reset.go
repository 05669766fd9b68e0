package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/lzxauto/internal/service"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the change cache",
	Long: `Delete the change cache snapshot so the next session compacts every
eligible file again. Refuses to run while a session is in progress.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.NewCompactService(cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Change cache reset:", cfg.SnapshotPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
