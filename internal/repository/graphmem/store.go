package graphmem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
)

// Store is an in-memory knowledge graph. Outgoing edges keep insertion
// order, which gives the reasoner the deterministic iteration it requires.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	nodes  map[string]graph.Node
	edges  map[string][]graph.Edge // sourceID + "|" + edgeType
	faults map[string]string       // normalized fault code → node id
}

// New creates an empty graph store.
func New() *Store {
	return &Store{
		nodes:  make(map[string]graph.Node),
		edges:  make(map[string][]graph.Edge),
		faults: make(map[string]string),
	}
}

// AddNode inserts or replaces a node. Fault-code nodes are also indexed by
// their normalized code for lookup.
func (s *Store) AddNode(n graph.Node) error {
	if n.ID() == "" {
		return fmt.Errorf("%w: node id is required", domain.ErrInputInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[n.ID()] = n
	if n.Type() == graph.FaultCode {
		code := n.Properties()["code"]
		if code == "" {
			code = n.Name()
		}
		s.faults[normalizeCode(code)] = n.ID()
	}
	return nil
}

// AddEdge appends a directed edge. The source node must exist; a dangling
// target is tolerated and skipped by the reasoner.
func (s *Store) AddEdge(e graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[e.SourceID()]; !ok {
		return fmt.Errorf("%w: edge source %s", domain.ErrNodeNotFound, e.SourceID())
	}
	key := edgeKey(e.SourceID(), e.Type())
	s.edges[key] = append(s.edges[key], e)
	return nil
}

// GetNode returns a node by id.
func (s *Store) GetNode(_ context.Context, id string) (graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return graph.Node{}, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return n, nil
}

// GetOutgoingEdges returns edges of one type leaving a node, in insertion
// order.
func (s *Store) GetOutgoingEdges(_ context.Context, id string, edgeType graph.EdgeType) ([]graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := s.edges[edgeKey(id, edgeType)]
	out := make([]graph.Edge, len(edges))
	copy(out, edges)
	return out, nil
}

// FindFaultNode resolves a fault code to its node id.
func (s *Store) FindFaultNode(_ context.Context, code string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.faults[normalizeCode(code)]
	if !ok {
		return "", fmt.Errorf("%w: fault code %s", domain.ErrNodeNotFound, code)
	}
	return id, nil
}

// NodeCount reports the number of stored nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func edgeKey(id string, t graph.EdgeType) string {
	return id + "|" + string(t)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
