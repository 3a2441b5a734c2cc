package graphredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kinetic-field/faultline/internal/db"
	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
)

const propFieldPrefix = "prop:"

// store is the consumer interface for graph persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store persists the knowledge graph in Redis: one hash per node plus a
// JSON-encoded adjacency list per (node, edge type). The adjacency encoding
// keeps edge order stable across reads, which the reasoner requires.
type Store struct {
	store     store
	keyPrefix string
}

// New creates a Redis-backed graph store.
func New(s store, keyPrefix string) *Store {
	return &Store{store: s, keyPrefix: keyPrefix}
}

// PutNode upserts a node hash. Fault-code nodes also get a code → id
// lookup key.
func (s *Store) PutNode(ctx context.Context, n graph.Node) error {
	if n.ID() == "" {
		return fmt.Errorf("%w: node id is required", domain.ErrInputInvalid)
	}

	fields := map[string]string{
		"type": string(n.Type()),
		"name": n.Name(),
	}
	for k, v := range n.Properties() {
		fields[propFieldPrefix+k] = v
	}
	if err := s.store.HSet(ctx, s.nodeKey(n.ID()), fields); err != nil {
		return fmt.Errorf("put node %s: %w", n.ID(), err)
	}

	if n.Type() == graph.FaultCode {
		code := n.Properties()["code"]
		if code == "" {
			code = n.Name()
		}
		if err := s.store.Set(ctx, s.faultKey(code), []byte(n.ID())); err != nil {
			return fmt.Errorf("index fault %s: %w", code, err)
		}
	}
	return nil
}

// PutEdge appends a directed edge to the source node's adjacency list.
// Duplicate targets are ignored.
func (s *Store) PutEdge(ctx context.Context, e graph.Edge) error {
	key := s.edgesKey(e.SourceID(), e.Type())

	targets, err := s.readTargets(ctx, key)
	if err != nil {
		return fmt.Errorf("read edges %s: %w", key, err)
	}
	for _, t := range targets {
		if t == e.TargetID() {
			return nil
		}
	}

	targets = append(targets, e.TargetID())
	raw, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("encode edges %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("put edge %s: %w", key, err)
	}
	return nil
}

// GetNode loads a node by id.
func (s *Store) GetNode(ctx context.Context, id string) (graph.Node, error) {
	fields, err := s.store.HGetAll(ctx, s.nodeKey(id))
	if err != nil {
		return graph.Node{}, fmt.Errorf("get node %s: %w", id, err)
	}
	if len(fields) == 0 {
		return graph.Node{}, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}

	props := make(map[string]string)
	for k, v := range fields {
		if name, ok := strings.CutPrefix(k, propFieldPrefix); ok {
			props[name] = v
		}
	}
	return graph.NewNode(id, graph.NodeType(fields["type"]), fields["name"], props), nil
}

// GetOutgoingEdges returns edges of one type leaving a node, in stored
// order.
func (s *Store) GetOutgoingEdges(ctx context.Context, id string, edgeType graph.EdgeType) ([]graph.Edge, error) {
	targets, err := s.readTargets(ctx, s.edgesKey(id, edgeType))
	if err != nil {
		return nil, fmt.Errorf("edges of %s: %w", id, err)
	}

	edges := make([]graph.Edge, 0, len(targets))
	for _, t := range targets {
		edges = append(edges, graph.NewEdge(id, t, edgeType))
	}
	return edges, nil
}

// FindFaultNode resolves a fault code to its node id.
func (s *Store) FindFaultNode(ctx context.Context, code string) (string, error) {
	raw, err := s.store.Get(ctx, s.faultKey(code))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: fault code %s", domain.ErrNodeNotFound, code)
		}
		return "", fmt.Errorf("find fault %s: %w", code, err)
	}
	return string(raw), nil
}

func (s *Store) readTargets(ctx context.Context, key string) ([]string, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var targets []string
	if err := json.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("decode adjacency: %w", err)
	}
	return targets, nil
}

func (s *Store) nodeKey(id string) string {
	return s.keyPrefix + "graph:node:" + id
}

func (s *Store) edgesKey(id string, t graph.EdgeType) string {
	return s.keyPrefix + "graph:out:" + id + ":" + string(t)
}

func (s *Store) faultKey(code string) string {
	return s.keyPrefix + "graph:fault:" + strings.ToUpper(strings.TrimSpace(code))
}
