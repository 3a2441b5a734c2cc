package ingest

import (
	"context"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
	searchrepo "github.com/kinetic-field/faultline/internal/repository/search"
)

type mockDocStore struct {
	putDocs []searchrepo.Document
	err     error
}

func (m *mockDocStore) PutDocuments(_ context.Context, docs []searchrepo.Document) error {
	if m.err != nil {
		return m.err
	}
	m.putDocs = append(m.putDocs, docs...)
	return nil
}

type mockGraphStore struct {
	nodes   []graph.Node
	edges   []graph.Edge
	nodeErr error
	edgeErr error
}

func (m *mockGraphStore) PutNode(_ context.Context, n graph.Node) error {
	if m.nodeErr != nil {
		return m.nodeErr
	}
	m.nodes = append(m.nodes, n)
	return nil
}

func (m *mockGraphStore) PutEdge(_ context.Context, e graph.Edge) error {
	if m.edgeErr != nil {
		return m.edgeErr
	}
	m.edges = append(m.edges, e)
	return nil
}

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
	texts []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	m.texts = append(m.texts, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: 8}, nil
}
