package graphredis

import (
	"context"

	"github.com/kinetic-field/faultline/internal/db"
)

// mockStore is an in-memory stand-in for the Redis hash/KV surface.
type mockStore struct {
	hashes map[string]map[string]string
	kv     map[string][]byte

	hGetAllErr error
	getErr     error
	setErr     error
}

func newMockStore() *mockStore {
	return &mockStore{
		hashes: make(map[string]map[string]string),
		kv:     make(map[string][]byte),
	}
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if m.hGetAllErr != nil {
		return nil, m.hGetAllErr
	}
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.kv[key] = value
	return nil
}
