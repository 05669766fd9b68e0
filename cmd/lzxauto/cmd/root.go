package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ning0612/lzxauto/internal/config"
	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lzxauto",
	Short: "Transparently compress a directory tree with the OS compaction tool",
	Long: `lzxauto walks a directory tree and compresses every eligible file in place
with the operating system's compaction tool (compact.exe /exe:LZX by default).

Files are skipped when their extension is on the skip list, when they carry
the system attribute, when they are empty, or when their on-disk size still
matches what the change cache recorded after the last compaction. The change
cache survives between runs, so repeated sessions only touch what changed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		switch cmd.Name() {
		case "help", "completion", "version":
			return nil
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if logFormat != "" {
			loaded.Log.Format = logFormat
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		return logger.Init(loggerConfig(cfg))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Shutdown()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Shutdown()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: search ., ./configs, user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, domain.ErrCacheCorrupt):
		return 2
	case errors.Is(err, domain.ErrSessionInProgress):
		return 3
	default:
		return 1
	}
}

// loggerConfig logs to stderr, plus the rotating activity log when enabled
func loggerConfig(c *config.Config) logger.Config {
	path := c.Log.File.Path
	if path == "" {
		path = filepath.Join(c.GetDataDir(), "lzxauto.log")
	}

	return logger.Config{
		Level:  logger.ParseLevel(c.Log.Level),
		Format: logger.ParseFormat(c.Log.Format),
		Outputs: []logger.OutputConfig{
			{Type: logger.OutputStderr},
			{Type: logger.OutputFile},
		},
		File: logger.FileConfig{
			Enabled:    c.Log.File.Enabled,
			Path:       config.ExpandPath(path),
			MaxSizeMB:  c.Log.File.MaxSizeMB,
			MaxAgeDays: c.Log.File.MaxAgeDays,
			MaxBackups: c.Log.File.MaxBackups,
			Compress:   c.Log.File.Compress,
		},
	}
}

// signalContext is cancelled by Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// resolveRoot picks the session root: argument, then config, then the
// root of the current volume
func resolveRoot(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if cfg.Root != "" {
		return config.ExpandPath(cfg.Root)
	}
	return config.DefaultRoot()
}
