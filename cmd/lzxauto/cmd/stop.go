package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/lzxauto/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile := daemon.NewPIDFile(cfg.GetPIDPath())
		pid, err := pidFile.Read()
		if err != nil {
			return err
		}
		if err := pidFile.Stop(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for daemon (PID %d)\n", pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
