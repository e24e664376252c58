package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/domain"
	"ragserver/internal/vectorstore"
)

// Store is a minimal REST client to Qdrant. It uses cosine distance and
// creates the collection on first write.
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	// mu guards initialized; concurrent requests race to create the
	// collection on first write.
	mu          sync.Mutex
	initialized bool
}

type Config struct {
	URL        string
	APIKey     string
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
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// pointID maps a chunk id to a deterministic UUID; Qdrant only accepts
// unsigned integers or UUIDs as point ids. The raw id travels in the payload.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	// Qdrant returns 200 when the collection already exists with the same schema.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *Store) Add(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim := len(entries[0].Vector)
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry with empty id", domain.ErrIndexWrite)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: mixed vector dimensions %d and %d", domain.ErrIndexWrite, dim, len(e.Vector))
		}
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}

	// Upserts overwrite silently, so existing ids are checked first.
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = pointID(e.ID)
	}
	var existing struct {
		Result []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	retrieveBody := map[string]any{"ids": ids, "with_payload": true, "with_vector": false}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points", s.url, s.collection), retrieveBody, &existing); err != nil {
		return err
	}
	if len(existing.Result) > 0 {
		dup := existing.Result[0].ID
		if raw, ok := existing.Result[0].Payload["id"].(string); ok {
			dup = raw
		}
		return fmt.Errorf("%w: id %q already exists", domain.ErrIndexWrite, dup)
	}

	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     pointID(e.ID),
			"vector": e.Vector,
			"payload": map[string]any{
				"id":       e.ID,
				"source":   e.Source,
				"chunk_id": e.Index,
				"text":     e.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]vectorstore.Result, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	results := make([]vectorstore.Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		// Qdrant reports cosine similarity; the contract wants distance.
		res := vectorstore.Result{Distance: 1 - r.Score}
		if v, ok := r.Payload["text"].(string); ok {
			res.Text = v
		}
		if v, ok := r.Payload["source"].(string); ok {
			res.Source = v
		}
		if v, ok := r.Payload["chunk_id"].(float64); ok {
			res.Index = int(v)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"exact": true}
	err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection), body, &resp)
	if err != nil {
		// A missing collection means an empty knowledge base, not a failure.
		if s.collectionMissing(ctx) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Store) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant DELETE collection failed: %s", resp.Status)
	}
	// Recreated lazily on the next Add, with the dimension of that batch.
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	return nil
}

func (s *Store) collectionMissing(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return false
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusNotFound
}

func (s *Store) putJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
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
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
