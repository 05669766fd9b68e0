package compact

import (
	"io/fs"

	"github.com/Ning0612/lzxauto/internal/domain"
)

// Usage describes the space of the volume holding a path
type Usage struct {
	Free  uint64
	Total uint64
}

// Used returns the occupied bytes
func (u Usage) Used() uint64 {
	if u.Total > u.Free {
		return u.Total - u.Free
	}
	return 0
}

// AttributesOf returns the compaction-relevant attributes of an entry.
// Platforms without native attribute bits derive what they can from the mode.
func AttributesOf(info fs.FileInfo) domain.Attributes {
	attrs := nativeAttributes(info)
	if info.IsDir() {
		attrs |= domain.AttrDirectory
	}
	return attrs
}

// RoundToCluster rounds size up to a whole number of clusters
func RoundToCluster(size int64, cluster uint64) int64 {
	if size <= 0 || cluster == 0 {
		return size
	}
	c := int64(cluster)
	return (size + c - 1) / c * c
}
