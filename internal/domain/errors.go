package domain

import "errors"

// Walk errors
var (
	// ErrRootNotFound indicates the session root does not exist
	ErrRootNotFound = errors.New("root path not found")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrPathTooLong indicates the platform rejected a path for its length
	ErrPathTooLong = errors.New("path too long")
)

// Compaction errors
var (
	// ErrCompactFailed indicates the compaction tool exited with a non-zero status
	ErrCompactFailed = errors.New("compaction failed")

	// ErrToolNotFound indicates the compaction tool could not be started
	ErrToolNotFound = errors.New("compaction tool not found")
)

// Cache errors
var (
	// ErrCacheCorrupt indicates the change cache snapshot could not be decoded.
	// Sessions must not continue with a partially decoded cache.
	ErrCacheCorrupt = errors.New("change cache snapshot is corrupt")
)

// Session errors
var (
	// ErrSessionInProgress indicates another session already holds the instance lock
	ErrSessionInProgress = errors.New("another instance is already running")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
