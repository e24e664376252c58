package memory

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"ragserver/internal/domain"
	"ragserver/internal/vectorstore"
)

// Store is an in-memory vector store using brute-force cosine distance.
// When a persist directory is configured, every mutation writes a gob
// snapshot so the collection survives restarts.
type Store struct {
	mu         sync.RWMutex
	collection string
	persistDir string
	entries    []domain.Entry
	ids        map[string]struct{}
}

// snapshot is the on-disk representation of the collection.
type snapshot struct {
	Collection string
	Entries    []domain.Entry
}

// New creates a store for the named collection. persistDir may be empty for
// a purely in-memory store; otherwise an existing snapshot is loaded.
func New(collection, persistDir string) (*Store, error) {
	s := &Store{
		collection: collection,
		persistDir: persistDir,
		ids:        make(map[string]struct{}),
	}
	if persistDir != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

func (s *Store) Add(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := len(entries[0].Vector)
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry with empty id", domain.ErrIndexWrite)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: mixed vector dimensions %d and %d", domain.ErrIndexWrite, dim, len(e.Vector))
		}
		if _, ok := s.ids[e.ID]; ok {
			return fmt.Errorf("%w: id %q already exists", domain.ErrIndexWrite, e.ID)
		}
	}
	if len(s.entries) > 0 && len(s.entries[0].Vector) != dim {
		return fmt.Errorf("%w: vector dimension %d does not match collection dimension %d",
			domain.ErrIndexWrite, dim, len(s.entries[0].Vector))
	}
	// Batch-internal duplicates are rejected too.
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("%w: id %q appears twice in batch", domain.ErrIndexWrite, e.ID)
		}
		seen[e.ID] = struct{}{}
	}

	// The snapshot is written before the in-memory state changes, so a
	// failed Add leaves nothing behind and the same batch can be retried.
	combined := make([]domain.Entry, 0, len(s.entries)+len(entries))
	combined = append(combined, s.entries...)
	combined = append(combined, entries...)
	if err := s.persist(combined); err != nil {
		return err
	}

	s.entries = combined
	for _, e := range entries {
		s.ids[e.ID] = struct{}{}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]vectorstore.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 5
	}
	if len(s.entries) == 0 {
		return nil, nil
	}

	type scored struct {
		pos      int
		distance float64
	}
	scores := make([]scored, len(s.entries))
	for i, e := range s.entries {
		scores[i] = scored{pos: i, distance: cosineDistance(e.Vector, vector)}
	}
	// Stable sort keeps insertion order for equal distances.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].distance < scores[j].distance })

	if topK > len(scores) {
		topK = len(scores)
	}
	results := make([]vectorstore.Result, 0, topK)
	for _, sc := range scores[:topK] {
		e := s.entries[sc.pos]
		results = append(results, vectorstore.Result{
			Text:     e.Text,
			Source:   e.Source,
			Index:    e.Index,
			Distance: sc.distance,
		})
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(nil); err != nil {
		return err
	}
	s.entries = nil
	s.ids = make(map[string]struct{})
	return nil
}

// cosineDistance returns 1 - cosine similarity, so smaller means closer.
// Mismatched or zero vectors get the maximum distance instead of an error.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.persistDir, s.collection+".gob")
}

func (s *Store) persist(entries []domain.Entry) error {
	if s.persistDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.persistDir, 0o755); err != nil {
		return err
	}
	tmp := s.snapshotPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	snap := snapshot{Collection: s.collection, Entries: entries}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.snapshotPath())
}

func (s *Store) load() error {
	f, err := os.Open(s.snapshotPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("loading vector store snapshot: %w", err)
	}
	s.entries = snap.Entries
	for _, e := range s.entries {
		s.ids[e.ID] = struct{}{}
	}
	return nil
}
