package synthesizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragserver/internal/domain"
)

const systemPrompt = "You are a knowledgeable assistant that provides accurate answers based on given context."

// ChatClient is the subset of the OpenAI chat API the synthesizer needs.
// *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Synthesizer builds a grounded prompt from retrieved chunks and asks the
// chat model for a cited answer.
type Synthesizer struct {
	client      ChatClient
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// Config configures the answer synthesizer.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func New(client ChatClient, cfg Config) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Synthesizer{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

// Synthesize produces an answer grounded in the given context chunks.
// Failures wrap domain.ErrSynthesis; the orchestrator converts them into a
// structured error result.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []domain.ContextChunk) (domain.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(question, chunks)},
		},
	})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("%w: %v", domain.ErrSynthesis, err)
	}
	if len(resp.Choices) == 0 {
		return domain.Answer{}, fmt.Errorf("%w: chat completion returned no choices", domain.ErrSynthesis)
	}

	return domain.Answer{
		Text:        resp.Choices[0].Message.Content,
		Sources:     distinctSources(chunks),
		ContextUsed: len(chunks),
	}, nil
}

// buildPrompt concatenates each chunk prefixed with its source label, in
// retrieval-rank order, followed by the question.
func buildPrompt(question string, chunks []domain.ContextChunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("[Source: %s]\n%s", c.Source, c.Text))
	}
	context := strings.Join(blocks, "\n\n")

	return fmt.Sprintf(`You are a helpful assistant that answers questions based on the provided context.
Use the context below to answer the user's question. If the answer cannot be found in the context, say so.

Context:
%s

Question: %s

Answer the question succinctly and cite the sources used.`, context, question)
}

// distinctSources deduplicates source names, keeping first-appearance order.
func distinctSources(chunks []domain.ContextChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var sources []string
	for _, c := range chunks {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		sources = append(sources, c.Source)
	}
	return sources
}
