package domain

import "fmt"

// Chunk is a contiguous, word-bounded slice of a document's extracted text.
type Chunk struct {
	Source string
	Index  int
	Text   string
}

// ID returns the stable identifier used for this chunk in the vector store.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s_chunk_%d", c.Source, c.Index)
}

// Entry is a single record held by the vector store: a chunk, its embedding,
// and the provenance metadata needed to cite it later.
type Entry struct {
	ID     string
	Vector []float32
	Text   string
	Source string
	Index  int
}

// ContextChunk is a retrieved chunk with provenance and similarity distance.
// Smaller distance means more similar.
type ContextChunk struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Distance float64 `json:"distance"`
}

// Answer is the synthesized response to a question.
type Answer struct {
	Text        string
	Sources     []string
	ContextUsed int
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHealthy = "healthy"
)

// IngestResult reports the outcome of ingesting a single document.
type IngestResult struct {
	Status        string `json:"status"`
	DocumentName  string `json:"document_name,omitempty"`
	ChunksCreated int    `json:"chunks_created"`
	Message       string `json:"message,omitempty"`
}

// QueryResult reports the outcome of answering a question. RetrievedChunks
// carries the raw context for caller inspection and is only set on success.
type QueryResult struct {
	Status          string         `json:"status"`
	Answer          string         `json:"answer,omitempty"`
	Sources         []string       `json:"sources,omitempty"`
	ContextUsed     int            `json:"context_used,omitempty"`
	Message         string         `json:"message,omitempty"`
	RetrievedChunks []ContextChunk `json:"retrieved_chunks,omitempty"`
}

// StatsResult reports knowledge-base statistics.
type StatsResult struct {
	Status         string `json:"status"`
	TotalChunks    int    `json:"total_chunks"`
	CollectionName string `json:"collection_name,omitempty"`
	Message        string `json:"message,omitempty"`
}

// ClearResult reports the outcome of clearing the knowledge base.
type ClearResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResult reports service liveness and whether the LLM credential is set.
type HealthResult struct {
	Status        string `json:"status"`
	LLMConfigured bool   `json:"llm_configured"`
}
