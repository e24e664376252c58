package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ragserver/internal/domain"
	"ragserver/internal/vectorstore"
)

// Store is a minimal REST client to a Chroma server. The collection is
// created with cosine distance if missing.
type Store struct {
	url        string
	collection string
	client     *http.Client

	// mu guards collectionID; requests arrive on separate goroutines and
	// the first ones race to resolve the collection.
	mu           sync.Mutex
	collectionID string
}

type Config struct {
	URL        string
	Collection string
	Timeout    time.Duration
}

func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        cfg.URL,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// collectionRef resolves the collection id, creating the collection with
// cosine distance when it does not exist yet. Safe for concurrent callers.
func (s *Store) collectionRef(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}
	body := map[string]any{
		"name":          s.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections", s.url), body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chroma: collection %q has no id", s.collection)
	}
	s.collectionID = resp.ID
	return resp.ID, nil
}

func (s *Store) Add(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	colID, err := s.collectionRef(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	documents := make([]string, len(entries))
	metadatas := make([]map[string]any, len(entries))
	dim := len(entries[0].Vector)
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry with empty id", domain.ErrIndexWrite)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: mixed vector dimensions %d and %d", domain.ErrIndexWrite, dim, len(e.Vector))
		}
		ids[i] = e.ID
		vectors[i] = e.Vector
		documents[i] = e.Text
		metadatas[i] = map[string]any{"source": e.Source, "chunk_id": e.Index}
	}

	// Chroma upserts silently on add, so existing ids are checked first.
	var existing struct {
		IDs []string `json:"ids"`
	}
	getBody := map[string]any{"ids": ids}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/get", s.url, colID), getBody, &existing); err != nil {
		return err
	}
	if len(existing.IDs) > 0 {
		return fmt.Errorf("%w: id %q already exists", domain.ErrIndexWrite, existing.IDs[0])
	}

	addBody := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return s.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/add", s.url, colID), addBody, nil)
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]vectorstore.Result, error) {
	colID, err := s.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp struct {
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/query", s.url, colID), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Documents) == 0 {
		return nil, nil
	}

	docs := resp.Documents[0]
	results := make([]vectorstore.Result, 0, len(docs))
	for i, text := range docs {
		r := vectorstore.Result{Text: text}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			meta := resp.Metadatas[0][i]
			if v, ok := meta["source"].(string); ok {
				r.Source = v
			}
			if v, ok := meta["chunk_id"].(float64); ok {
				r.Index = int(v)
			}
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	colID, err := s.collectionRef(ctx)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/collections/%s/count", s.url, colID), nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("chroma GET count failed: %s", resp.Status)
	}
	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Clear drops the collection and recreates an empty one with the same
// settings before returning, so callers never observe a half-deleted state.
func (s *Store) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("chroma DELETE collection failed: %s", resp.Status)
	}
	s.mu.Lock()
	s.collectionID = ""
	s.mu.Unlock()
	_, err = s.collectionRef(ctx)
	return err
}

func (s *Store) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chroma POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
