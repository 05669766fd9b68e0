//go:build windows

package compact

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Ning0612/lzxauto/internal/domain"
)

const (
	fsctlSetCompression   = 0x9C040
	compressionFormatNone = 0
	defaultClusterSize    = 4096
	invalidFileSize       = 0xFFFFFFFF
)

var (
	modkernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procGetCompressedFileSizeW = modkernel32.NewProc("GetCompressedFileSizeW")
	procGetDiskFreeSpaceW      = modkernel32.NewProc("GetDiskFreeSpaceW")
)

// AllocatedSize returns the on-disk size of path, which reflects compaction.
// Returns 0 on failure.
func AllocatedSize(path string) uint64 {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0
	}

	var high uint32
	r1, _, e1 := procGetCompressedFileSizeW.Call(uintptr(unsafe.Pointer(p)), uintptr(unsafe.Pointer(&high)))
	low := uint32(r1)
	if low == invalidFileSize {
		// 0xFFFFFFFF is also a valid low word; only the last error tells them apart
		if errno, ok := e1.(syscall.Errno); !ok || errno != 0 {
			return 0
		}
	}
	return uint64(high)<<32 | uint64(low)
}

// DiskUsage returns free and total bytes of the volume holding path
func DiskUsage(path string) (Usage, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Usage{}, err
	}

	var freeToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &totalFree); err != nil {
		return Usage{}, err
	}
	return Usage{Free: freeToCaller, Total: total}, nil
}

// ClusterSize returns the allocation unit of the volume holding path
func ClusterSize(path string) uint64 {
	root := filepath.VolumeName(path) + `\`
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return defaultClusterSize
	}

	var sectorsPerCluster, bytesPerSector, freeClusters, totalClusters uint32
	r1, _, _ := procGetDiskFreeSpaceW.Call(
		uintptr(unsafe.Pointer(p)),
		uintptr(unsafe.Pointer(&sectorsPerCluster)),
		uintptr(unsafe.Pointer(&bytesPerSector)),
		uintptr(unsafe.Pointer(&freeClusters)),
		uintptr(unsafe.Pointer(&totalClusters)),
	)
	if r1 == 0 || sectorsPerCluster == 0 || bytesPerSector == 0 {
		return defaultClusterSize
	}
	return uint64(sectorsPerCluster) * uint64(bytesPerSector)
}

// IsElevated reports whether the process token is elevated
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

func nativeAttributes(info fs.FileInfo) domain.Attributes {
	if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return domain.Attributes(data.FileAttributes)
	}
	var attrs domain.Attributes
	if info.Mode().Perm()&0200 == 0 {
		attrs |= domain.AttrReadOnly
	}
	return attrs
}

func clearCompression(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0)
	if err != nil {
		return &os.PathError{Op: "open", Path: path, Err: err}
	}
	defer windows.CloseHandle(h)

	format := uint16(compressionFormatNone)
	var returned uint32
	return windows.DeviceIoControl(h, fsctlSetCompression,
		(*byte)(unsafe.Pointer(&format)), uint32(unsafe.Sizeof(format)),
		nil, 0, &returned, nil)
}

func prepareLowPriority(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.BELOW_NORMAL_PRIORITY_CLASS}
}

func applyLowPriority(cmd *exec.Cmd) error {
	// Priority class is set at creation
	return nil
}
