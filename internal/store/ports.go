// Package store defines the persistence ports used by the services and the
// HTTP layer. Backends live in the sub-packages and in internal/storage.
package store

import (
	"context"

	"bitesbytes/internal/core"
)

// Ports for outbound adapters.
type (
	RecordWriter interface {
		// Append validates and stores the entry, returning a backend-specific
		// reference (row range, document ID, database ID).
		Append(ctx context.Context, e core.Entry) (ref string, err error)
	}

	RecordLister interface {
		// ListRecords returns every document whose Category field equals
		// category exactly. Documents are returned as stored; no field is
		// guaranteed to be present or well typed.
		ListRecords(ctx context.Context, category core.Category) ([]core.RawRecord, error)
	}

	RecordStore interface {
		RecordWriter
		RecordLister
	}
)
