package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/progress"
	"github.com/Ning0612/lzxauto/internal/service"
)

var (
	showProgress     bool
	progressInterval time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Run one compaction session",
	Long: `Run one compaction session over path.

Without a path the configured root is used, or the root of the current
volume. Ctrl+C stops submitting new files; compactions already started
finish and the change cache is saved before exiting.

Examples:
  lzxauto run D:\games
  lzxauto run --progress`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		svc, err := service.NewCompactService(cfg, service.WithVersion(version))
		if err != nil {
			return err
		}
		defer svc.Close()

		if showProgress {
			svc.SetProgressReporter(progress.NewCallbackReporter(
				progress.NewLinePrinter(cmd.ErrOrStderr(), progressInterval)))
		}

		summary, err := svc.Run(ctx, resolveRoot(args))
		if summary != nil {
			printSummary(cmd.OutOrStdout(), summary)
		}
		if err != nil {
			return err
		}

		switch summary.Status {
		case domain.StatusCancelled:
			return fmt.Errorf("session interrupted: %w", ctx.Err())
		case domain.StatusPartial:
			return errors.New("session incomplete: " + summary.WalkError)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&showProgress, "progress", false, "print progress lines to stderr")
	runCmd.Flags().DurationVar(&progressInterval, "progress-interval", 2*time.Second, "minimum time between progress lines")
	rootCmd.AddCommand(runCmd)
}

func printSummary(w io.Writer, s *domain.SessionSummary) {
	fmt.Fprintf(w, "Session %s: %s in %s\n", s.Status, s.Root, s.Elapsed().Round(time.Second))
	fmt.Fprintf(w, "  visited:            %d\n", s.Visited)
	fmt.Fprintf(w, "  compacted:          %d\n", s.Processed)
	fmt.Fprintf(w, "  skipped unchanged:  %d\n", s.SkippedUnchanged)
	fmt.Fprintf(w, "  skipped extension:  %d\n", s.SkippedByExtension)
	fmt.Fprintf(w, "  skipped attribute:  %d\n", s.SkippedByAttribute)
	fmt.Fprintf(w, "  skipped empty:      %d\n", s.SkippedEmpty)
	fmt.Fprintf(w, "  failed:             %d\n", s.Failed)
	fmt.Fprintf(w, "  cache entries:      %d\n", s.CacheEntries)
	if s.DiskCapacity > 0 {
		fmt.Fprintf(w, "  free space:         %s -> %s of %s (saved %s)\n",
			progress.FormatBytes(int64(s.DiskFreeBefore)),
			progress.FormatBytes(int64(s.DiskFreeAfter)),
			progress.FormatBytes(int64(s.DiskCapacity)),
			progress.FormatBytes(int64(s.SessionSaved())))
	}
	if s.WalkError != "" {
		fmt.Fprintf(w, "  error:              %s\n", s.WalkError)
	}
}
