package reasoner

import (
	"context"

	"github.com/kinetic-field/faultline/internal/domain/graph"
)

// Store defines the knowledge graph read contract. Implementations must
// return outgoing edges in a deterministic order per node; the reasoner's
// tie-breaking depends on it.
type Store interface {
	GetNode(ctx context.Context, id string) (graph.Node, error)
	GetOutgoingEdges(ctx context.Context, id string, edgeType graph.EdgeType) ([]graph.Edge, error)
}
