// Package ingest loads the document corpus and the knowledge graph.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
	searchrepo "github.com/kinetic-field/faultline/internal/repository/search"
)

// MaxBatchSize bounds one ingest call.
const MaxBatchSize = 100

// DocumentStore persists embedded documents into the search index.
type DocumentStore interface {
	PutDocuments(ctx context.Context, docs []searchrepo.Document) error
}

// GraphStore persists knowledge graph nodes and edges.
type GraphStore interface {
	PutNode(ctx context.Context, n graph.Node) error
	PutEdge(ctx context.Context, e graph.Edge) error
}

// Embedder vectorizes document content at ingest time.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Service embeds and stores documents and graph data.
type Service struct {
	docs     DocumentStore
	graph    GraphStore
	embedder Embedder
	logger   *zap.Logger
}

// New creates an ingest service.
func New(docs DocumentStore, g GraphStore, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{docs: docs, graph: g, embedder: embedder, logger: logger}
}

// PutDocuments validates the batch, embeds documents that arrive without a
// vector, and writes them to the index.
func (s *Service) PutDocuments(ctx context.Context, docs []searchrepo.Document) error {
	if len(docs) == 0 || len(docs) > MaxBatchSize {
		return fmt.Errorf("%w: documents count must be between 1 and %d", domain.ErrInputInvalid, MaxBatchSize)
	}
	for i := range docs {
		doc := &docs[i]
		if doc.ID == "" {
			return fmt.Errorf("%w: document %d has no id", domain.ErrInputInvalid, i)
		}
		if doc.Content == "" {
			return fmt.Errorf("%w: document %q has no content", domain.ErrInputInvalid, doc.ID)
		}
		if len(doc.Embedding) > 0 {
			continue
		}
		emb, err := s.embedder.Embed(ctx, embeddingText(doc))
		if err != nil {
			return fmt.Errorf("embed document %q: %w", doc.ID, err)
		}
		doc.Embedding = emb.Embedding
	}

	if err := s.docs.PutDocuments(ctx, docs); err != nil {
		return fmt.Errorf("store documents: %w", err)
	}
	s.logger.Info("Documents ingested", zap.Int("count", len(docs)))
	return nil
}

// PutGraph writes nodes before edges so every edge source already exists.
func (s *Service) PutGraph(ctx context.Context, nodes []graph.Node, edges []graph.Edge) error {
	if len(nodes) == 0 && len(edges) == 0 {
		return fmt.Errorf("%w: empty graph batch", domain.ErrInputInvalid)
	}
	if len(nodes)+len(edges) > MaxBatchSize {
		return fmt.Errorf("%w: graph batch exceeds %d items", domain.ErrInputInvalid, MaxBatchSize)
	}

	for _, n := range nodes {
		if n.ID() == "" || !n.Type().IsValid() {
			return fmt.Errorf("%w: node %q has an empty id or unknown type", domain.ErrInputInvalid, n.ID())
		}
		if err := s.graph.PutNode(ctx, n); err != nil {
			return fmt.Errorf("store node %q: %w", n.ID(), err)
		}
	}
	for _, e := range edges {
		if e.SourceID() == "" || e.TargetID() == "" || !e.Type().IsValid() {
			return fmt.Errorf("%w: edge %q -> %q is malformed", domain.ErrInputInvalid, e.SourceID(), e.TargetID())
		}
		if err := s.graph.PutEdge(ctx, e); err != nil {
			return fmt.Errorf("store edge %q -> %q: %w", e.SourceID(), e.TargetID(), err)
		}
	}

	s.logger.Info("Graph ingested",
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
	)
	return nil
}

func embeddingText(doc *searchrepo.Document) string {
	if doc.Title == "" {
		return doc.Content
	}
	return doc.Title + "\n" + doc.Content
}
