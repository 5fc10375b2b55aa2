package backend

import (
	"context"
	"time"

	"scadenze/internal/cache"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

// Backend is a storage repository that can report its own health.
type Backend interface {
	storage.Repository
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired storage, services and report cache of one process.
type BackendResult struct {
	Backend     Backend
	Commitments *services.CommitmentService
	Reports     *services.ReportService
	Cache       *cache.LRUCache[any]
	Cleanup     CleanupFunc
}

// Ready reports whether the backend can serve requests.
func (r *BackendResult) Ready(ctx context.Context) error {
	return r.Backend.Ping(ctx)
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Events; publishing is disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Currency
	BaseUnit  string
	RatesFile string

	// Reports
	Reports   services.ReportConfig
	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
