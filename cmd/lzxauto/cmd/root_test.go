package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ning0612/lzxauto/internal/config"
	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"interrupted", fmt.Errorf("session interrupted: %w", context.Canceled), 130},
		{"corrupt cache", fmt.Errorf("load: %w", domain.ErrCacheCorrupt), 2},
		{"locked", fmt.Errorf("acquire: %w", domain.ErrSessionInProgress), 3},
		{"other", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveRoot(t *testing.T) {
	cfg = config.Default()
	defer func() { cfg = nil }()

	if got := resolveRoot([]string{"/explicit"}); got != "/explicit" {
		t.Errorf("argument should win, got %q", got)
	}

	cfg.Root = "/configured"
	if got := resolveRoot(nil); got != filepath.Clean("/configured") {
		t.Errorf("config root should be used, got %q", got)
	}

	cfg.Root = ""
	if got := resolveRoot(nil); got != config.DefaultRoot() {
		t.Errorf("volume root expected, got %q", got)
	}
}

func TestLoggerConfig(t *testing.T) {
	c := config.Default()
	c.DataDir = t.TempDir()
	c.Log.Level = "debug"
	c.Log.Format = "json"
	c.Log.File.Enabled = true

	lc := loggerConfig(c)

	if lc.Level != logger.LevelDebug || lc.Format != logger.FormatJSON {
		t.Errorf("unexpected level/format: %v %v", lc.Level, lc.Format)
	}
	if !lc.File.Enabled {
		t.Error("file output should be enabled")
	}
	if lc.File.Path != filepath.Join(c.DataDir, "lzxauto.log") {
		t.Errorf("default log path = %q", lc.File.Path)
	}
	if len(lc.Outputs) != 2 {
		t.Errorf("expected stderr and file outputs, got %d", len(lc.Outputs))
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Now()
	s := &domain.SessionSummary{
		Root:           "/data",
		Status:         domain.StatusPartial,
		StartTime:      start,
		EndTime:        start.Add(3 * time.Second),
		Visited:        7,
		Processed:      4,
		DiskCapacity:   1 << 30,
		DiskFreeBefore: 1 << 20,
		DiskFreeAfter:  2 << 20,
		WalkError:      "permission denied",
	}

	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()

	for _, want := range []string{
		"Session partial: /data in 3s",
		"compacted:          4",
		"saved 1.0 MB",
		"error:              permission denied",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "lzxauto dev") {
		t.Errorf("unexpected version output: %q", buf.String())
	}
}
