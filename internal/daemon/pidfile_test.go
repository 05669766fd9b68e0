package daemon_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/Ning0612/lzxauto/internal/daemon"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	// Create temp directory for test
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	pidFile := daemon.NewPIDFile(pidPath)

	// Write PID file
	err := pidFile.Write()
	if err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	// Read PID file
	pid, err := pidFile.Read()
	if err != nil {
		t.Fatalf("Failed to read PID file: %v", err)
	}

	// Verify PID matches current process
	if pid != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), pid)
	}

	// Clean up
	pidFile.Remove()
}

func TestPIDFile_IsRunning(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	pidFile := daemon.NewPIDFile(pidPath)

	// Write PID for current process
	err := pidFile.Write()
	if err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}
	defer pidFile.Remove()

	// Check if running (should be true for current process)
	running, err := pidFile.IsRunning()
	if err != nil {
		t.Fatalf("Failed to check if running: %v", err)
	}

	if !running {
		t.Error("Expected process to be running")
	}
}

func TestPIDFile_WriteExisting(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	pidFile := daemon.NewPIDFile(pidPath)

	// Write first time
	err := pidFile.Write()
	if err != nil {
		t.Fatalf("Failed to write PID file first time: %v", err)
	}
	defer pidFile.Remove()

	// Try to write again (should fail since process is still running)
	err = pidFile.Write()
	if !errors.Is(err, daemon.ErrDaemonRunning) {
		t.Errorf("Expected ErrDaemonRunning when writing PID file for running process, got %v", err)
	}
}

func TestPIDFile_StalePIDCleanup(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	pidFile := daemon.NewPIDFile(pidPath)

	// Write a PID for a process that has already exited
	err := os.WriteFile(pidPath, []byte(strconv.Itoa(exitedPID(t))+"\n"), 0644)
	if err != nil {
		t.Fatalf("Failed to write fake PID: %v", err)
	}

	// Write should succeed and remove stale PID file
	err = pidFile.Write()
	if err != nil {
		t.Fatalf("Failed to write after stale PID: %v", err)
	}
	defer pidFile.Remove()

	// Verify current PID is written
	pid, err := pidFile.Read()
	if err != nil {
		t.Fatalf("Failed to read PID: %v", err)
	}

	if pid != os.Getpid() {
		t.Errorf("Expected current PID %d, got %d", os.Getpid(), pid)
	}
}

func TestPIDFile_Remove(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	pidFile := daemon.NewPIDFile(pidPath)

	// Write PID file
	err := pidFile.Write()
	if err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	// Remove PID file
	err = pidFile.Remove()
	if err != nil {
		t.Fatalf("Failed to remove PID file: %v", err)
	}

	// Verify file is removed
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists after removal")
	}

	// Removing again should not error
	err = pidFile.Remove()
	if err != nil {
		t.Errorf("Expected no error when removing non-existent PID file, got: %v", err)
	}
}

func TestPIDFile_ReadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "not-a-pid\n"},
		{"empty", ""},
		{"negative", "-5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pidPath := filepath.Join(t.TempDir(), "bad.pid")
			if err := os.WriteFile(pidPath, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			if _, err := daemon.NewPIDFile(pidPath).Read(); err == nil {
				t.Error("Expected error for invalid PID content")
			}
		})
	}
}

func TestPIDFile_StopNotRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(exitedPID(t))), 0644); err != nil {
		t.Fatal(err)
	}

	if err := daemon.NewPIDFile(pidPath).Stop(); err == nil {
		t.Error("Expected error when stopping a process that is not running")
	}
}

func TestPIDFile_StopMissing(t *testing.T) {
	pidFile := daemon.NewPIDFile(filepath.Join(t.TempDir(), "missing.pid"))
	if err := pidFile.Stop(); err == nil {
		t.Error("Expected error when PID file does not exist")
	}
}

func TestPIDFile_Stop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a Unix sleep process")
	}

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	pidPath := filepath.Join(t.TempDir(), "child.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(cmd.Process.Pid)), 0644); err != nil {
		t.Fatal(err)
	}

	if err := daemon.NewPIDFile(pidPath).Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("process did not exit after Stop")
	}
}

func TestProcessAlive(t *testing.T) {
	tests := []struct {
		name string
		pid  int
		want bool
	}{
		{"this process", os.Getpid(), true},
		{"exited process", exitedPID(t), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daemon.ProcessAlive(tt.pid); got != tt.want {
				t.Errorf("ProcessAlive(%d) = %v, want %v", tt.pid, got, tt.want)
			}
		})
	}
}

// exitedPID returns the PID of a process that has already been reaped
func exitedPID(t *testing.T) int {
	t.Helper()
	name, args := "true", []string{}
	if runtime.GOOS == "windows" {
		name, args = "cmd", []string{"/c", "exit"}
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run helper process: %v", err)
	}
	return cmd.ProcessState.Pid()
}
