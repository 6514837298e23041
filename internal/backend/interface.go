package backend

import (
	"context"

	"smartbudget/internal/ports"
)

// CleanupFunc releases the resources a backend holds.
type CleanupFunc func() error

// BackendResult contains the store, its readiness check and an optional
// cleanup function.
type BackendResult struct {
	Store ports.Store

	// Ready reports whether the store answers. Backends that cannot fail
	// leave it nil.
	Ready func(context.Context) error

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific: directory holding seed_profiles.txt.
	SeedDir string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
