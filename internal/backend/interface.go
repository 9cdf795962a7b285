package backend

import (
	"context"

	"bitesbytes/internal/store"
)

// Backend is the record store the HTTP server and CLI work against.
type Backend interface {
	store.RecordWriter
	store.RecordLister
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
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
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets specific
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string

	// Firestore specific
	FirestoreProjectID  string
	FirestoreCollection string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	SQLiteBackend    BackendType = "sqlite"
	SheetsBackend    BackendType = "sheets"
	FirestoreBackend BackendType = "firestore"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, SheetsBackend, FirestoreBackend:
		return true
	default:
		return false
	}
}
