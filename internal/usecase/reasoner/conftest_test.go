package reasoner

import (
	"context"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
)

// mockStore implements Store over in-memory maps with slice-ordered edges.
type mockStore struct {
	nodes map[string]graph.Node
	edges map[string][]graph.Edge // keyed by source id, insertion order preserved

	getNodeErr error
	edgesErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		nodes: make(map[string]graph.Node),
		edges: make(map[string][]graph.Edge),
	}
}

func (m *mockStore) addNode(id string, t graph.NodeType, name string) {
	m.nodes[id] = graph.NewNode(id, t, name, nil)
}

func (m *mockStore) addEdge(source, target string, t graph.EdgeType) {
	m.edges[source] = append(m.edges[source], graph.NewEdge(source, target, t))
}

func (m *mockStore) GetNode(ctx context.Context, id string) (graph.Node, error) {
	if m.getNodeErr != nil {
		return graph.Node{}, m.getNodeErr
	}
	n, ok := m.nodes[id]
	if !ok {
		return graph.Node{}, domain.ErrNodeNotFound
	}
	return n, nil
}

func (m *mockStore) GetOutgoingEdges(ctx context.Context, id string, edgeType graph.EdgeType) ([]graph.Edge, error) {
	if m.edgesErr != nil {
		return nil, m.edgesErr
	}
	var out []graph.Edge
	for _, e := range m.edges[id] {
		if e.Type() == edgeType {
			out = append(out, e)
		}
	}
	return out, nil
}
