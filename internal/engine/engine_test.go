package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/chunker"
	"ragserver/internal/domain"
	"ragserver/internal/retriever"
	"ragserver/internal/vectorstore/memory"
)

type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(data []byte, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(data), nil
}

// fakeEmbedder derives a deterministic vector from each text so that equal
// texts always land on the same point.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		var a, b float32
		for _, r := range text {
			a += float32(r % 7)
			b += float32(r % 13)
		}
		out[i] = []float32{a + 1, b + 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

type fakeSynthesizer struct {
	calls int
	err   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, question string, chunks []domain.ContextChunk) (domain.Answer, error) {
	f.calls++
	if f.err != nil {
		return domain.Answer{}, f.err
	}
	seen := map[string]struct{}{}
	var sources []string
	for _, c := range chunks {
		if _, ok := seen[c.Source]; !ok {
			seen[c.Source] = struct{}{}
			sources = append(sources, c.Source)
		}
	}
	return domain.Answer{Text: "synthesized answer", Sources: sources, ContextUsed: len(chunks)}, nil
}

type testRig struct {
	engine *Engine
	emb    *fakeEmbedder
	synth  *fakeSynthesizer
	store  *memory.Store
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	store, err := memory.New("knowledge_base", "")
	require.NoError(t, err)
	ch, err := chunker.NewWordChunker(500, 50)
	require.NoError(t, err)

	emb := &fakeEmbedder{}
	synth := &fakeSynthesizer{}
	eng := New(&fakeExtractor{}, ch, emb, store, retriever.New(emb, store), synth, "knowledge_base", true, nil)
	return &testRig{engine: eng, emb: emb, synth: synth, store: store}
}

const norwayDoc = "The capital of Norway is Oslo. Oslo lies on the Oslofjord. Norway borders Sweden."

func TestIngestAndQueryEndToEnd(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	ingest := rig.engine.Ingest(ctx, "norway.txt", []byte(norwayDoc))
	require.Equal(t, domain.StatusSuccess, ingest.Status)
	assert.Equal(t, "norway.txt", ingest.DocumentName)
	assert.Equal(t, 1, ingest.ChunksCreated)

	result := rig.engine.Query(ctx, "What is the capital of Norway?", 1)
	require.Equal(t, domain.StatusSuccess, result.Status, result.Message)
	assert.Equal(t, "synthesized answer", result.Answer)
	assert.Equal(t, []string{"norway.txt"}, result.Sources)
	assert.Equal(t, 1, result.ContextUsed)
	require.Len(t, result.RetrievedChunks, 1)
	assert.Equal(t, "norway.txt", result.RetrievedChunks[0].Source)
}

func TestQueryIsIdempotentOnSources(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	require.Equal(t, domain.StatusSuccess, rig.engine.Ingest(ctx, "norway.txt", []byte(norwayDoc)).Status)

	first := rig.engine.Query(ctx, "capital?", 5)
	second := rig.engine.Query(ctx, "capital?", 5)
	require.Equal(t, domain.StatusSuccess, first.Status)
	require.Equal(t, domain.StatusSuccess, second.Status)
	assert.Equal(t, first.Sources, second.Sources)
}

func TestQueryEmptyQuestionNeverReachesEmbedder(t *testing.T) {
	rig := newRig(t)

	for _, q := range []string{"", "   ", "\n\t"} {
		result := rig.engine.Query(context.Background(), q, 5)
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Equal(t, "Question cannot be empty", result.Message)
	}
	assert.Equal(t, 0, rig.emb.calls)
	assert.Equal(t, 0, rig.synth.calls)
}

func TestQueryTopKOutOfRange(t *testing.T) {
	rig := newRig(t)

	for _, k := range []int{-1, 11, 100} {
		result := rig.engine.Query(context.Background(), "question", k)
		assert.Equal(t, domain.StatusError, result.Status, "top_k=%d", k)
	}
	assert.Equal(t, 0, rig.emb.calls)
}

func TestQueryEmptyKnowledgeBaseShortCircuits(t *testing.T) {
	rig := newRig(t)

	result := rig.engine.Query(context.Background(), "anything", 5)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, "No documents in knowledge base. Please upload documents first.", result.Message)
	assert.Equal(t, 0, rig.emb.calls)
	assert.Equal(t, 0, rig.synth.calls)
}

type emptyRetriever struct{}

func (e *emptyRetriever) Retrieve(ctx context.Context, question string, topK int) ([]domain.ContextChunk, error) {
	return nil, nil
}

func TestQueryNoRelevantContext(t *testing.T) {
	store, err := memory.New("knowledge_base", "")
	require.NoError(t, err)
	ch, err := chunker.NewWordChunker(500, 50)
	require.NoError(t, err)
	emb := &fakeEmbedder{}
	synth := &fakeSynthesizer{}
	eng := New(&fakeExtractor{}, ch, emb, store, &emptyRetriever{}, synth, "knowledge_base", true, nil)

	require.Equal(t, domain.StatusSuccess, eng.Ingest(context.Background(), "doc.txt", []byte("some words here")).Status)

	result := eng.Query(context.Background(), "unrelated", 5)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, "No relevant information found in the knowledge base.", result.Message)
	assert.Equal(t, 0, synth.calls)
}

func TestIngestZeroTextSucceedsWithoutChunks(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	result := rig.engine.Ingest(ctx, "empty.txt", []byte("   \n  "))
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, 0, result.ChunksCreated)
	assert.Equal(t, 0, rig.emb.calls)

	stats := rig.engine.Stats(ctx)
	assert.Equal(t, 0, stats.TotalChunks)
}

func TestIngestExtractionFailure(t *testing.T) {
	store, err := memory.New("knowledge_base", "")
	require.NoError(t, err)
	ch, err := chunker.NewWordChunker(500, 50)
	require.NoError(t, err)
	emb := &fakeEmbedder{}
	extractErr := fmt.Errorf("%w: corrupt file", domain.ErrExtraction)
	eng := New(&fakeExtractor{err: extractErr}, ch, emb, store, retriever.New(emb, store), &fakeSynthesizer{}, "knowledge_base", true, nil)

	result := eng.Ingest(context.Background(), "bad.pdf", []byte("garbage"))
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Contains(t, result.Message, "extraction failed")
	assert.Equal(t, 0, emb.calls)

	// nothing was written
	stats := eng.Stats(context.Background())
	assert.Equal(t, 0, stats.TotalChunks)
}

func TestIngestDuplicateDocumentRejected(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	require.Equal(t, domain.StatusSuccess, rig.engine.Ingest(ctx, "norway.txt", []byte(norwayDoc)).Status)

	dup := rig.engine.Ingest(ctx, "norway.txt", []byte(norwayDoc))
	assert.Equal(t, domain.StatusError, dup.Status)
	assert.Contains(t, dup.Message, "already exists")

	stats := rig.engine.Stats(ctx)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestSynthesisFailureIsStructured(t *testing.T) {
	rig := newRig(t)
	rig.synth.err = fmt.Errorf("%w: deadline exceeded", domain.ErrSynthesis)
	ctx := context.Background()

	require.Equal(t, domain.StatusSuccess, rig.engine.Ingest(ctx, "norway.txt", []byte(norwayDoc)).Status)

	result := rig.engine.Query(ctx, "capital?", 5)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Contains(t, result.Message, "answer synthesis failed")

	// the retrieved context still reaches the caller
	require.NotEmpty(t, result.RetrievedChunks)
	assert.Equal(t, "norway.txt", result.RetrievedChunks[0].Source)
}

func TestClearThenStatsAndQuery(t *testing.T) {
	rig := newRig(t)
	ctx := context.Background()

	require.Equal(t, domain.StatusSuccess, rig.engine.Ingest(ctx, "norway.txt", []byte(norwayDoc)).Status)

	clear := rig.engine.Clear(ctx)
	assert.Equal(t, domain.StatusSuccess, clear.Status)
	assert.Equal(t, "Knowledge base cleared", clear.Message)

	stats := rig.engine.Stats(ctx)
	assert.Equal(t, domain.StatusSuccess, stats.Status)
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Equal(t, "knowledge_base", stats.CollectionName)

	synthCallsBefore := rig.synth.calls
	result := rig.engine.Query(ctx, "capital?", 5)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, "No documents in knowledge base. Please upload documents first.", result.Message)
	assert.Equal(t, synthCallsBefore, rig.synth.calls)
}

func TestHealth(t *testing.T) {
	rig := newRig(t)
	health := rig.engine.Health()
	assert.Equal(t, domain.StatusHealthy, health.Status)
	assert.True(t, health.LLMConfigured)
}
