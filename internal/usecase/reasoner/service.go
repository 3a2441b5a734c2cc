package reasoner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
)

// DefaultMaxDepth bounds traversal when the caller passes no depth.
const DefaultMaxDepth = 3

// Service walks causal relationships outward from a fault node to build an
// evidence chain. Stateless given its inputs; safe for concurrent use.
type Service struct {
	store  Store
	logger *zap.Logger
}

// New creates a graph reasoner.
func New(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// traversal edge types, in tie-break priority order.
var causalEdgeTypes = []graph.EdgeType{graph.CausedBy, graph.ResolvedBy}

// FindCauses traverses CAUSED_BY and RESOLVED_BY edges breadth-first from
// the fault node, bounded by maxDepth, and returns the discovered chain.
// A visited set keeps the chain finite and free of repeats even when the
// underlying graph is cyclic. A missing fault node yields an empty chain,
// not an error, so diagnosis can proceed on model reasoning alone.
func (s *Service) FindCauses(ctx context.Context, faultNodeID string, maxDepth int) (graph.Chain, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	start, err := s.store.GetNode(ctx, faultNodeID)
	if err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) {
			s.logger.Debug("Fault node not in graph", zap.String("fault", faultNodeID))
			return graph.NewChain(faultNodeID, nil), nil
		}
		return graph.Chain{}, fmt.Errorf("get fault node %s: %w", faultNodeID, err)
	}

	type frontier struct {
		node  graph.Node
		depth int
	}

	visited := map[string]bool{start.ID(): true}
	queue := []frontier{{node: start, depth: 0}}
	var steps []graph.Step

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxDepth {
			continue
		}

		for _, et := range causalEdgeTypes {
			edges, err := s.store.GetOutgoingEdges(ctx, cur.node.ID(), et)
			if err != nil {
				return graph.Chain{}, fmt.Errorf("edges of %s (%s): %w", cur.node.ID(), et, err)
			}

			for _, edge := range edges {
				if visited[edge.TargetID()] {
					continue
				}

				target, err := s.store.GetNode(ctx, edge.TargetID())
				if err != nil {
					if errors.Is(err, domain.ErrNodeNotFound) {
						// Dangling edge; skip it rather than abort the walk.
						s.logger.Warn("Edge target missing",
							zap.String("source", edge.SourceID()),
							zap.String("target", edge.TargetID()),
						)
						continue
					}
					return graph.Chain{}, fmt.Errorf("get node %s: %w", edge.TargetID(), err)
				}

				visited[edge.TargetID()] = true
				steps = append(steps, graph.Step{From: cur.node, Edge: edge, To: target})
				queue = append(queue, frontier{node: target, depth: cur.depth + 1})
			}
		}
	}

	return graph.NewChain(faultNodeID, steps), nil
}
