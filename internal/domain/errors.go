package domain

import "errors"

// Sentinel errors raised inside the pipelines. Internal helpers wrap these
// with %w so callers can match with errors.Is; the engine classifies them
// exactly once into structured error results at its boundary. Flow-control
// outcomes with fixed user-facing messages (empty question, empty knowledge
// base, no relevant context) are returned directly as error results and have
// no sentinel.
var (
	// ErrExtraction marks document bytes that cannot be parsed as their
	// declared type.
	ErrExtraction = errors.New("extraction failed")

	// ErrChunkingConfig marks invalid chunker parameters, e.g. an overlap
	// that is not smaller than the chunk size.
	ErrChunkingConfig = errors.New("invalid chunking configuration")

	// ErrIndexWrite marks a rejected vector store write: duplicate chunk id
	// or mismatched batch shapes. Nothing is written on rejection.
	ErrIndexWrite = errors.New("index write rejected")

	// ErrSynthesis marks an LLM call failure, timeout, or malformed response.
	ErrSynthesis = errors.New("answer synthesis failed")
)
