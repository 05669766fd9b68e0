package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/lzxauto/internal/lock"
)

var forceUnlock bool

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Remove a stale instance lock",
	Long: `Remove the instance lock left behind by a session that crashed.
A lock held by a live process is only removed with --force.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fileLock, err := lock.NewFileLock(cfg.GetDataDir())
		if err != nil {
			return err
		}

		holder, err := fileLock.Current()
		if err == nil && !forceUnlock {
			return fmt.Errorf("PID %d on %s has been %s since %s; use --force to remove the lock",
				holder.PID, holder.Hostname, holder.Activity(), holder.Acquired.Format(time.RFC3339))
		}

		if err := fileLock.ForceRelease(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Lock removed:", fileLock.Path())
		return nil
	},
}

func init() {
	unlockCmd.Flags().BoolVarP(&forceUnlock, "force", "f", false, "remove the lock even if its holder is alive")
	rootCmd.AddCommand(unlockCmd)
}
