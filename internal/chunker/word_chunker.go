package chunker

import (
	"fmt"
	"strings"

	"ragserver/internal/domain"
)

// WordChunker splits text into overlapping windows of whitespace-delimited
// words. Output is a pure function of the input text and parameters.
type WordChunker struct {
	chunkSize int
	overlap   int
}

// NewWordChunker creates a chunker with the given window size and overlap,
// both counted in words. An overlap that is not smaller than the chunk size
// would make the window advance by zero or backwards, so it is rejected
// rather than clamped.
func NewWordChunker(chunkSize, overlap int) (*WordChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrChunkingConfig, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrChunkingConfig, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", domain.ErrChunkingConfig, overlap, chunkSize)
	}
	return &WordChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split slides a window of chunkSize words over the text, advancing by
// chunkSize-overlap words per step, and joins each window with single
// spaces. A document shorter than one window yields exactly one chunk.
func (c *WordChunker) Split(source, text string) []domain.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap
	var chunks []domain.Chunk
	for start := 0; start < len(words); start += step {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, domain.Chunk{
			Source: source,
			Index:  len(chunks),
			Text:   strings.Join(words[start:end], " "),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
