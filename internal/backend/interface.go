// Package backend selects and builds the remote document store the ledger
// file is mirrored to.
package backend

import (
	"context"

	"splitter/internal/remote"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the store instance and optional cleanup function. Store is
// nil for the none backend.
type Result struct {
	Store      remote.DocumentStore
	Describer  remote.Describer
	DocumentID string
	Cleanup    CleanupFunc
}

// Enabled reports whether a remote store was configured.
func (r *Result) Enabled() bool {
	return r != nil && r.Store != nil
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
	// CreateSheetReader returns nil when no spreadsheet is configured.
	CreateSheetReader(ctx context.Context, config Config) (remote.RowReader, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	DocumentID string

	// Drive specific
	ClientSecretsFile string
	TokenPath         string

	// Memory specific: the store is seeded from this file when it exists.
	SeedPath string

	// Spreadsheet import; empty SpreadsheetID disables it.
	SpreadsheetID string
	SheetsRange   string
}

// BackendType represents the type of backend
type BackendType string

const (
	NoneBackend   BackendType = "none"
	MemoryBackend BackendType = "memory"
	DriveBackend  BackendType = "drive"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case NoneBackend, MemoryBackend, DriveBackend:
		return true
	default:
		return false
	}
}
