//go:build !windows

package compact

import (
	"io/fs"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/Ning0612/lzxauto/internal/domain"
)

const (
	defaultClusterSize = 4096
	lowPriorityNice    = 10
)

// AllocatedSize returns the on-disk size of path (st_blocks × 512).
// Returns 0 on failure.
func AllocatedSize(path string) uint64 {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0
	}
	return uint64(st.Blocks) * 512
}

// DiskUsage returns free and total bytes of the filesystem holding path
func DiskUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	bsize := uint64(st.Bsize)
	return Usage{
		Free:  uint64(st.Bavail) * bsize,
		Total: uint64(st.Blocks) * bsize,
	}, nil
}

// ClusterSize returns the block size of the filesystem holding path
func ClusterSize(path string) uint64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil || st.Bsize <= 0 {
		return defaultClusterSize
	}
	return uint64(st.Bsize)
}

// IsElevated reports whether the process runs as root
func IsElevated() bool {
	return os.Geteuid() == 0
}

func nativeAttributes(info fs.FileInfo) domain.Attributes {
	var attrs domain.Attributes
	if info.Mode().Perm()&0200 == 0 {
		attrs |= domain.AttrReadOnly
	}
	return attrs
}

// No native per-file compression flag to clear
func clearCompression(path string) error {
	return nil
}

func prepareLowPriority(cmd *exec.Cmd) {}

func applyLowPriority(cmd *exec.Cmd) error {
	return unix.Setpriority(unix.PRIO_PROCESS, cmd.Process.Pid, lowPriorityNice)
}
