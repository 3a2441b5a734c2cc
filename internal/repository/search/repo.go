package search

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kinetic-field/faultline/internal/db"
	domsearch "github.com/kinetic-field/faultline/internal/domain/search"
)

const (
	docKeySegment = "doc:"

	// snippetLimit bounds the snippet carried on each hit.
	snippetLimit = 240
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Document is one manual page or troubleshooting article in the corpus.
type Document struct {
	ID           string
	Title        string
	Content      string
	Manufacturer string
	Equipment    string
	FaultCode    string
	Embedding    []float32
}

// Repo serves lexical and vector retrieval over the document index.
type Repo struct {
	store     store
	index     string
	keyPrefix string
	vectorDim int
}

// New creates a search repository over the given FT index.
func New(s store, index, keyPrefix string, vectorDim int) *Repo {
	return &Repo{store: s, index: index, keyPrefix: keyPrefix, vectorDim: vectorDim}
}

// EnsureIndex creates the document index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("probe index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.index).
		Prefix(r.docPrefix()).
		Text("content").
		Tag("manufacturer").
		Tag("equipment").
		Tag("fault_code").
		Vector("embedding", r.vectorDim, db.VectorHNSW, db.DistanceCosine).
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	return nil
}

// PutDocuments upserts documents into the corpus in one pipelined round trip.
func (r *Repo) PutDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		if d.ID == "" {
			return fmt.Errorf("document %d: id is required", i)
		}
		fields := map[string]string{
			"title":   d.Title,
			"content": d.Content,
		}
		if d.Manufacturer != "" {
			fields["manufacturer"] = strings.ToLower(d.Manufacturer)
		}
		if d.Equipment != "" {
			fields["equipment"] = strings.ToLower(d.Equipment)
		}
		if d.FaultCode != "" {
			fields["fault_code"] = strings.ToUpper(d.FaultCode)
		}
		if len(d.Embedding) > 0 {
			fields["embedding"] = vectorToBytes(d.Embedding)
		}
		items = append(items, db.HashSetItem{Key: r.docKey(d.ID), Fields: fields})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("put documents: %w", err)
	}
	return nil
}

// SearchLexical runs a BM25 search and returns hits in source rank order.
func (r *Repo) SearchLexical(
	ctx context.Context, text, manufacturer, equipment string, topK int,
) ([]domsearch.RankedHit, error) {
	q := &db.TextQuery{
		IndexName:    r.index,
		Query:        text,
		Tags:         tagFilters(manufacturer, equipment),
		TopK:         topK,
		ReturnFields: []string{"title", "content"},
	}

	sr, err := r.store.SearchBM25(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search lexical: %w", err)
	}
	return r.toHits(sr), nil
}

// SearchVector runs a KNN search over document embeddings.
func (r *Repo) SearchVector(
	ctx context.Context, vector []float32, manufacturer, equipment string, topK int,
) ([]domsearch.RankedHit, error) {
	q := &db.KNNQuery{
		IndexName:    r.index,
		Vector:       vector,
		Tags:         tagFilters(manufacturer, equipment),
		K:            topK,
		ReturnFields: []string{"title", "content", "__embedding_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search vector: %w", err)
	}
	return r.toHits(sr), nil
}

func (r *Repo) toHits(sr *db.SearchResult) []domsearch.RankedHit {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	hits := make([]domsearch.RankedHit, 0, len(sr.Entries))
	for i, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, r.docPrefix())
		hits = append(hits, domsearch.NewHit(id, i+1, entry.Score, snippet(entry.Fields)))
	}
	return hits
}

func (r *Repo) docPrefix() string {
	return r.keyPrefix + docKeySegment
}

func (r *Repo) docKey(id string) string {
	return r.docPrefix() + id
}

func tagFilters(manufacturer, equipment string) map[string]string {
	tags := make(map[string]string, 2)
	if manufacturer != "" {
		tags["manufacturer"] = strings.ToLower(manufacturer)
	}
	if equipment != "" {
		tags["equipment"] = strings.ToLower(equipment)
	}
	return tags
}

// snippet prefers the title line, then leading content, truncated on a rune
// boundary.
func snippet(fields map[string]string) string {
	title := strings.TrimSpace(fields["title"])
	content := strings.TrimSpace(fields["content"])

	s := content
	if title != "" {
		if s == "" {
			s = title
		} else {
			s = title + ": " + s
		}
	}

	runes := []rune(s)
	if len(runes) > snippetLimit {
		s = string(runes[:snippetLimit]) + "..."
	}
	return s
}

// vectorToBytes serializes a []float32 for hash storage, matching the FT
// index FLOAT32 layout.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
