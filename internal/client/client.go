package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragserver/internal/domain"
)

// Client is a small REST client for the knowledge-base API, used by the
// terminal chat front end.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Query asks a question against the knowledge base.
func (c *Client) Query(question string, topK int) (domain.QueryResult, error) {
	body := map[string]any{"question": question, "top_k": topK}
	var result domain.QueryResult
	if err := c.postJSON("/query", body, &result); err != nil {
		return domain.QueryResult{}, err
	}
	return result, nil
}

// Upload sends a local file for ingestion.
func (c *Client) Upload(path string) (domain.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.IngestResult{}, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return domain.IngestResult{}, err
	}
	if _, err := part.Write(data); err != nil {
		return domain.IngestResult{}, err
	}
	if err := w.Close(); err != nil {
		return domain.IngestResult{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return domain.IngestResult{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.IngestResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.IngestResult{}, decodeDetail(resp)
	}
	var result domain.IngestResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.IngestResult{}, err
	}
	return result, nil
}

// Stats returns knowledge-base statistics.
func (c *Client) Stats() (domain.StatsResult, error) {
	var result domain.StatsResult
	if err := c.getJSON("/stats", &result); err != nil {
		return domain.StatsResult{}, err
	}
	return result, nil
}

// Clear drops the whole knowledge base.
func (c *Client) Clear() (domain.ClearResult, error) {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/clear", nil)
	if err != nil {
		return domain.ClearResult{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ClearResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.ClearResult{}, decodeDetail(resp)
	}
	var result domain.ClearResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.ClearResult{}, err
	}
	return result, nil
}

// Health checks the server.
func (c *Client) Health() (domain.HealthResult, error) {
	var result domain.HealthResult
	if err := c.getJSON("/health", &result); err != nil {
		return domain.HealthResult{}, err
	}
	return result, nil
}

func (c *Client) postJSON(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeDetail(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeDetail(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeDetail(resp *http.Response) error {
	payload, _ := io.ReadAll(resp.Body)
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(payload, &detail); err == nil && detail.Detail != "" {
		return fmt.Errorf("%s: %s", resp.Status, detail.Detail)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
