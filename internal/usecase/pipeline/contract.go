package pipeline

import (
	"context"
	"time"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
	"github.com/kinetic-field/faultline/internal/domain/graph"
	"github.com/kinetic-field/faultline/internal/domain/query"
	"github.com/kinetic-field/faultline/internal/domain/route"
	domsearch "github.com/kinetic-field/faultline/internal/domain/search"
	"github.com/kinetic-field/faultline/internal/usecase/consensus"
)

// Router classifies an incoming query into a handling mode.
type Router interface {
	Classify(ctx context.Context, q *query.Query) route.Mode
}

// LexicalSearcher is the full-text retrieval collaborator.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, text, manufacturer, equipment string, topK int) ([]domsearch.RankedHit, error)
}

// VectorSearcher is the similarity retrieval collaborator.
type VectorSearcher interface {
	SearchVector(ctx context.Context, vector []float32, manufacturer, equipment string, topK int) ([]domsearch.RankedHit, error)
}

// Embedder vectorizes query text for the vector search path.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Fuser merges two independently ranked hit lists into one ordering.
type Fuser interface {
	Fuse(lexical, vector []domsearch.RankedHit, limit int) []domsearch.FusedResult
}

// FaultFinder resolves a fault code to its graph node id.
type FaultFinder interface {
	FindFaultNode(ctx context.Context, code string) (string, error)
}

// Reasoner builds causal evidence chains from the knowledge graph.
type Reasoner interface {
	FindCauses(ctx context.Context, faultNodeID string, maxDepth int) (graph.Chain, error)
}

// Synthesizer runs concurrent expert passes and merges them.
type Synthesizer interface {
	Synthesize(ctx context.Context, fc *consensus.FaultContext, expertCount int) (diagnosis.ConsensusResult, error)
}

// Cache is the fingerprint-addressed response cache with single-flight
// semantics.
type Cache interface {
	GetOrCompute(ctx context.Context, fingerprint string, ttl time.Duration,
		compute func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// Generator produces synthesized answers and fault explanations.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error)
}
