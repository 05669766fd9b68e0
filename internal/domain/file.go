package domain

import "path/filepath"

// Attributes is a bitmask of filesystem attributes relevant to compaction.
// Values mirror the Windows FILE_ATTRIBUTE_* bits so they can be copied directly.
type Attributes uint32

const (
	AttrReadOnly   Attributes = 0x00000001
	AttrHidden     Attributes = 0x00000002
	AttrSystem     Attributes = 0x00000004
	AttrDirectory  Attributes = 0x00000010
	AttrCompressed Attributes = 0x00000800
)

// Has reports whether all bits of flag are set
func (a Attributes) Has(flag Attributes) bool {
	return a&flag == flag
}

// WorkItem is one file queued for processing.
// It is owned by the worker that dequeues it.
type WorkItem struct {
	// Path is the absolute path of the file
	Path string

	// Size is the logical length in bytes
	Size int64

	// Attrs are the attributes observed during enumeration
	Attrs Attributes
}

// Ext returns the file extension including the leading dot, as-is (case preserved)
func (w WorkItem) Ext() string {
	return filepath.Ext(w.Path)
}

// Outcome describes what happened to a single work item
type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeSkippedExtension
	OutcomeSkippedAttribute
	OutcomeSkippedEmpty
	OutcomeSkippedUnchanged
	OutcomeFailed
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeSkippedExtension:
		return "skipped_extension"
	case OutcomeSkippedAttribute:
		return "skipped_attribute"
	case OutcomeSkippedEmpty:
		return "skipped_empty"
	case OutcomeSkippedUnchanged:
		return "skipped_unchanged"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
