package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"bitesbytes/internal/core"
	"bitesbytes/internal/store"
)

// DefaultCollection is the collection the bakery's records live in.
const DefaultCollection = "BitsNBytes"

var _ store.RecordStore = (*Store)(nil)

// Options select the project and collection.
type Options struct {
	ProjectID  string
	Collection string
	// CredentialsFile is a service account key; empty means application
	// default credentials (or the emulator when FIRESTORE_EMULATOR_HOST is
	// set).
	CredentialsFile string
}

// Store keeps one document per record in a Firestore collection.
type Store struct {
	client     *firestore.Client
	collection string
}

// New connects to Firestore. Close releases the client.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, errors.New("missing Firestore project ID")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return NewWithClient(client, opts.Collection), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *firestore.Client, collection string) *Store {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection}
}

// Append adds the entry as a new document and returns its ID.
func (s *Store) Append(ctx context.Context, e core.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	ref, _, err := s.client.Collection(s.collection).Add(ctx, map[string]any(e.Raw()))
	if err != nil {
		return "", fmt.Errorf("add document to %s: %w", s.collection, err)
	}
	slog.DebugContext(ctx, "Record document added", "collection", s.collection, "id", ref.ID)
	return ref.ID, nil
}

// ListRecords runs an equality query on the Category field.
func (s *Store) ListRecords(ctx context.Context, category core.Category) ([]core.RawRecord, error) {
	iter := s.client.Collection(s.collection).
		Where(core.KeyCategory, "==", string(category)).
		Documents(ctx)
	defer iter.Stop()

	out := []core.RawRecord{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s for %s: %w", s.collection, category, err)
		}
		out = append(out, core.RawRecord(doc.Data()))
	}
	return out, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
