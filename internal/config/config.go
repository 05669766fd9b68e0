package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Ning0612/lzxauto/internal/domain"
)

// Config represents the complete configuration for lzxauto
type Config struct {
	// Root is the default directory tree to compact
	Root string `mapstructure:"root"`

	// DataDir holds the change cache snapshot, session history and lock file
	DataDir string `mapstructure:"data_dir"`

	// SkipExtensions are matched exactly (case-sensitive, leading dot included)
	SkipExtensions []string `mapstructure:"skip_extensions"`

	Compact     CompactConfig     `mapstructure:"compact"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`

	// SaveInterval is the period between change cache snapshots during a session
	SaveInterval time.Duration `mapstructure:"save_interval"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
}

// CompactConfig configures the external compaction tool
type CompactConfig struct {
	Tool        string `mapstructure:"tool"`
	Algorithm   string `mapstructure:"algorithm"`
	LowPriority bool   `mapstructure:"low_priority"`
}

// ConcurrencyConfig bounds the worker pool
type ConcurrencyConfig struct {
	// Workers is the number of concurrent compactions (0 = available parallelism)
	Workers int `mapstructure:"workers"`

	// QueueFactor multiplies available parallelism to get the in-flight ceiling
	QueueFactor int `mapstructure:"queue_factor"`
}

// LogConfig mirrors logger.Config in a decodable form
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotating activity log
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus textfile export
type MetricsConfig struct {
	// Textfile is the .prom output path; empty disables the export
	Textfile string `mapstructure:"textfile"`
}

// DaemonConfig configures repeated sessions
type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	PIDFile  string        `mapstructure:"pid_file"`
}

// Algorithms accepted by compact.exe /exe
var Algorithms = []string{"XPRESS4K", "XPRESS8K", "XPRESS16K", "LZX"}

// DefaultSkipExtensions lists formats that are already compressed
var DefaultSkipExtensions = []string{
	".zip", ".7z", ".rar", ".gz", ".xz", ".bz2", ".zst", ".cab", ".msi",
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic",
	".mp3", ".aac", ".ogg", ".flac", ".m4a",
	".mp4", ".mkv", ".avi", ".mov", ".webm",
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.Compact.Tool == "" {
		return fmt.Errorf("%w: compact.tool cannot be empty", domain.ErrConfigInvalid)
	}

	valid := false
	for _, a := range Algorithms {
		if strings.EqualFold(a, c.Compact.Algorithm) {
			c.Compact.Algorithm = a
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: unknown compact.algorithm %q (want one of %s)",
			domain.ErrConfigInvalid, c.Compact.Algorithm, strings.Join(Algorithms, ", "))
	}

	if c.Concurrency.Workers < 0 {
		return fmt.Errorf("%w: concurrency.workers cannot be negative", domain.ErrConfigInvalid)
	}
	if c.Concurrency.QueueFactor < 1 {
		return fmt.Errorf("%w: concurrency.queue_factor must be at least 1", domain.ErrConfigInvalid)
	}
	if c.SaveInterval <= 0 {
		return fmt.Errorf("%w: save_interval must be positive, got %v", domain.ErrConfigInvalid, c.SaveInterval)
	}
	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("%w: daemon.interval must be positive, got %v", domain.ErrConfigInvalid, c.Daemon.Interval)
	}

	for _, ext := range c.SkipExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: skip extension %q must start with a dot", domain.ErrConfigInvalid, ext)
		}
	}

	return nil
}

// Parallelism returns the effective worker count
func (c *Config) Parallelism() int {
	if c.Concurrency.Workers > 0 {
		return c.Concurrency.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Ceiling returns the in-flight item ceiling
func (c *Config) Ceiling() int {
	return c.Parallelism() * c.Concurrency.QueueFactor
}

// GetDataDir returns the data directory, falling back to the user config dir
func (c *Config) GetDataDir() string {
	if c.DataDir != "" {
		return ExpandPath(c.DataDir)
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "lzxauto")
	}
	return ".lzxauto"
}

// SnapshotPath returns the change cache snapshot file
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.GetDataDir(), "filedict.db")
}

// GetPIDPath returns the daemon PID file
func (c *Config) GetPIDPath() string {
	if c.Daemon.PIDFile != "" {
		return ExpandPath(c.Daemon.PIDFile)
	}
	return filepath.Join(c.GetDataDir(), "lzxauto.pid")
}

// DefaultRoot returns the root of the volume holding the working directory,
// like C:\ on Windows or / elsewhere
func DefaultRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return string(filepath.Separator)
	}
	vol := filepath.VolumeName(wd)
	return vol + string(filepath.Separator)
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
