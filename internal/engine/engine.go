package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ragserver/internal/domain"
	"ragserver/internal/embedding"
	"ragserver/internal/vectorstore"
)

// Extractor converts raw document bytes into a text blob.
type Extractor interface {
	Extract(data []byte, name string) (string, error)
}

// Chunker splits extracted text into chunks for the named source document.
type Chunker interface {
	Split(source, text string) []domain.Chunk
}

// Retriever returns ranked context chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) ([]domain.ContextChunk, error)
}

// Synthesizer produces a grounded answer from retrieved context.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, chunks []domain.ContextChunk) (domain.Answer, error)
}

const (
	defaultTopK = 5
	maxTopK     = 10
)

// Engine sequences the ingestion pipeline (extract, chunk, embed, index) and
// the query pipeline (embed, retrieve, synthesize). All failures are
// classified here and returned as structured results; nothing escapes as an
// uncaught fault.
type Engine struct {
	extractor   Extractor
	chunker     Chunker
	embedder    embedding.Embedder
	store       vectorstore.Store
	retriever   Retriever
	synthesizer Synthesizer
	collection  string
	llmReady    bool
	log         *zap.Logger

	// Clear is irreversible and drop+recreate is not atomic on the REST
	// backends, so it excludes in-flight ingestion and queries.
	mu sync.RWMutex
}

func New(extractor Extractor, chunker Chunker, embedder embedding.Embedder, store vectorstore.Store,
	retriever Retriever, synthesizer Synthesizer, collection string, llmReady bool, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		retriever:   retriever,
		synthesizer: synthesizer,
		collection:  collection,
		llmReady:    llmReady,
		log:         log,
	}
}

// Ingest processes one document end to end. The full batch is embedded and
// written with a single store call, so either all chunks of a document are
// indexed or none are.
func (e *Engine) Ingest(ctx context.Context, name string, data []byte) domain.IngestResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	text, err := e.extractor.Extract(data, name)
	if err != nil {
		e.log.Warn("extraction failed", zap.String("document", name), zap.Error(err))
		return domain.IngestResult{Status: domain.StatusError, DocumentName: name, Message: err.Error()}
	}

	chunks := e.chunker.Split(name, text)
	if len(chunks) == 0 {
		// No extractable text is not malformed content.
		return domain.IngestResult{
			Status:       domain.StatusSuccess,
			DocumentName: name,
			Message:      fmt.Sprintf("No text content found in %s", name),
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		e.log.Error("embedding failed", zap.String("document", name), zap.Error(err))
		return domain.IngestResult{Status: domain.StatusError, DocumentName: name, Message: err.Error()}
	}
	if len(vectors) != len(chunks) {
		return domain.IngestResult{
			Status:       domain.StatusError,
			DocumentName: name,
			Message:      fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}

	entries := make([]domain.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = domain.Entry{
			ID:     c.ID(),
			Vector: vectors[i],
			Text:   c.Text,
			Source: c.Source,
			Index:  c.Index,
		}
	}
	if err := e.store.Add(ctx, entries); err != nil {
		e.log.Error("index write failed", zap.String("document", name), zap.Error(err))
		return domain.IngestResult{Status: domain.StatusError, DocumentName: name, Message: err.Error()}
	}

	e.log.Info("document ingested", zap.String("document", name), zap.Int("chunks", len(chunks)))
	return domain.IngestResult{
		Status:        domain.StatusSuccess,
		DocumentName:  name,
		ChunksCreated: len(chunks),
		Message:       fmt.Sprintf("Successfully ingested %s", name),
	}
}

// Query answers a question from the knowledge base. Validation and the
// empty-index check happen before the embedding provider is touched.
func (e *Engine) Query(ctx context.Context, question string, topK int) domain.QueryResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if strings.TrimSpace(question) == "" {
		return domain.QueryResult{Status: domain.StatusError, Message: "Question cannot be empty"}
	}
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return domain.QueryResult{
			Status:  domain.StatusError,
			Message: fmt.Sprintf("top_k must be between 1 and %d", maxTopK),
		}
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		e.log.Error("count failed", zap.Error(err))
		return domain.QueryResult{Status: domain.StatusError, Message: err.Error()}
	}
	if count == 0 {
		return domain.QueryResult{
			Status:  domain.StatusError,
			Message: "No documents in knowledge base. Please upload documents first.",
		}
	}

	chunks, err := e.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		e.log.Error("retrieval failed", zap.Error(err))
		return domain.QueryResult{Status: domain.StatusError, Message: err.Error()}
	}
	if len(chunks) == 0 {
		return domain.QueryResult{
			Status:  domain.StatusError,
			Message: "No relevant information found in the knowledge base.",
		}
	}

	answer, err := e.synthesizer.Synthesize(ctx, question, chunks)
	if err != nil {
		e.log.Error("synthesis failed", zap.Error(err))
		// The retrieved context is still useful to the caller even when the
		// LLM call failed.
		return domain.QueryResult{Status: domain.StatusError, Message: err.Error(), RetrievedChunks: chunks}
	}

	return domain.QueryResult{
		Status:          domain.StatusSuccess,
		Answer:          answer.Text,
		Sources:         answer.Sources,
		ContextUsed:     answer.ContextUsed,
		RetrievedChunks: chunks,
	}
}

// Stats reports the number of indexed chunks.
func (e *Engine) Stats(ctx context.Context) domain.StatsResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count, err := e.store.Count(ctx)
	if err != nil {
		return domain.StatsResult{Status: domain.StatusError, Message: err.Error()}
	}
	return domain.StatsResult{
		Status:         domain.StatusSuccess,
		TotalChunks:    count,
		CollectionName: e.collection,
	}
}

// Clear drops all entries. It takes the write side of the engine lock so no
// ingestion or query runs mid-clear.
func (e *Engine) Clear(ctx context.Context) domain.ClearResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Clear(ctx); err != nil {
		e.log.Error("clear failed", zap.Error(err))
		return domain.ClearResult{Status: domain.StatusError, Message: err.Error()}
	}
	e.log.Info("knowledge base cleared", zap.String("collection", e.collection))
	return domain.ClearResult{Status: domain.StatusSuccess, Message: "Knowledge base cleared"}
}

// Health reports whether the LLM credential was present at startup.
func (e *Engine) Health() domain.HealthResult {
	return domain.HealthResult{Status: domain.StatusHealthy, LLMConfigured: e.llmReady}
}
