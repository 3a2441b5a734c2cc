package search

import (
	"context"
	"testing"

	"github.com/kinetic-field/faultline/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchKNNFn     func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchBM25Fn    func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	hSetMultiFn     func(ctx context.Context, items []db.HashSetItem) error
	createIndexFn   func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn   func(ctx context.Context, name string) (bool, error)
	putItems        []db.HashSetItem
	createdIndexDef *db.IndexDefinition
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchBM25Fn != nil {
		return m.searchBM25Fn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	m.putItems = append(m.putItems, items...)
	if m.hSetMultiFn != nil {
		return m.hSetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	m.createdIndexDef = def
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, "faultline_docs", "faultline:", 4)
	return repo, ms
}

func testVector() []float32 {
	vec := make([]float32, 4)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec
}
