package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"bitesbytes/internal/core"
	"bitesbytes/internal/store"
)

// SeedFile is the file NewFromFiles reads from the data directory: a JSON
// array of record documents.
const SeedFile = "seed_records.json"

var _ store.RecordStore = (*Store)(nil)

type document struct {
	id  string
	raw core.RawRecord
}

// Store keeps record documents in memory, in insertion order.
type Store struct {
	mu   sync.Mutex
	docs []document
}

// New returns a store holding copies of the seed documents.
func New(seed ...core.RawRecord) *Store {
	s := &Store{}
	for _, raw := range seed {
		s.docs = append(s.docs, document{id: uuid.NewString(), raw: maps.Clone(raw)})
	}
	return s
}

// NewFromFiles seeds the store from base/seed_records.json. A missing file
// yields an empty store.
func NewFromFiles(base string) (*Store, error) {
	seed, err := readSeed(filepath.Join(base, SeedFile))
	if err != nil {
		return nil, err
	}
	return New(seed...), nil
}

// Append stores the entry and returns a synthetic document reference.
func (s *Store) Append(_ context.Context, e core.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, document{id: id, raw: e.Raw()})
	return "mem:" + id, nil
}

// ListRecords returns copies of the documents whose Category equals category.
func (s *Store) ListRecords(_ context.Context, category core.Category) ([]core.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RawRecord, 0, len(s.docs))
	for _, d := range s.docs {
		if c, ok := d.raw[core.KeyCategory].(string); ok && c == string(category) {
			out = append(out, maps.Clone(d.raw))
		}
	}
	return out, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// readSeed decodes numbers as json.Number so amounts keep their textual form.
func readSeed(path string) ([]core.RawRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var docs []core.RawRecord
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return docs, nil
}
