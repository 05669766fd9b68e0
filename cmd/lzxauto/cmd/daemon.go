package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/lzxauto/internal/logger"
	"github.com/Ning0612/lzxauto/internal/service"
)

var daemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon [path]",
	Short: "Run sessions repeatedly in the foreground",
	Long: `Run a session immediately and then every interval until stopped with
Ctrl+C, SIGTERM or 'lzxauto stop'. A PID file in the data directory marks
the running daemon. A corrupt change cache stops the daemon with exit code 2;
run 'lzxauto reset' before starting it again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		interval := cfg.Daemon.Interval
		if daemonInterval > 0 {
			interval = daemonInterval
		}

		d, err := service.NewDaemonService(cfg, service.WithVersion(version))
		if err != nil {
			return err
		}
		defer d.Close()

		root := resolveRoot(args)
		if err := d.Start(ctx, root, interval); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon running for %s every %s (PID file %s)\n", root, interval, cfg.GetPIDPath())

		select {
		case <-ctx.Done():
			logger.Get().Info("shutdown requested, waiting for the running session")
		case <-d.Done():
		}

		stopErr := d.Stop()
		if err := d.Err(); err != nil {
			return err
		}
		return stopErr
	},
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "time between sessions (default: daemon.interval from config)")
	rootCmd.AddCommand(daemonCmd)
}
