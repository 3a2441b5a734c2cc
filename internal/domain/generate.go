package domain

import "context"

// Generator is the shared text generation contract between layers.
// The caller-supplied context carries the deadline; exceeding it surfaces
// as ErrCollaboratorTimeout from implementations.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// GenerateRequest describes one stateless generation call.
type GenerateRequest struct {
	Prompt string
	System string
	// JSONMode asks the provider for a syntactically valid JSON object.
	JSONMode bool
	// Temperature of 0 means provider default.
	Temperature float32
}

// GenerateResult carries the generated text and token usage.
type GenerateResult struct {
	Text         string
	PromptTokens int
	TotalTokens  int
}

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}
