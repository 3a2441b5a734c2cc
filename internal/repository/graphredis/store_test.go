package graphredis

import (
	"context"
	"errors"
	"testing"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
)

func TestPutGetNodeRoundTrip(t *testing.T) {
	ms := newMockStore()
	s := New(ms, "faultline:")
	ctx := context.Background()

	n := graph.NewNode("fault:E-401", graph.FaultCode, "Door zone fault", map[string]string{
		"code":     "E-401",
		"severity": "high",
	})
	if err := s.PutNode(ctx, n); err != nil {
		t.Fatalf("PutNode: %v", err)
	}

	got, err := s.GetNode(ctx, "fault:E-401")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Type() != graph.FaultCode || got.Name() != "Door zone fault" {
		t.Errorf("node = %s/%s", got.Type(), got.Name())
	}
	if got.Properties()["severity"] != "high" {
		t.Errorf("properties = %v", got.Properties())
	}
}

func TestGetNodeMissing(t *testing.T) {
	s := New(newMockStore(), "faultline:")
	if _, err := s.GetNode(context.Background(), "ghost"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestEdgesKeepStoredOrder(t *testing.T) {
	ms := newMockStore()
	s := New(ms, "faultline:")
	ctx := context.Background()

	targets := []string{"c2", "c1", "c3"}
	for _, tgt := range targets {
		if err := s.PutEdge(ctx, graph.NewEdge("f", tgt, graph.CausedBy)); err != nil {
			t.Fatalf("PutEdge %s: %v", tgt, err)
		}
	}
	// duplicate is a no-op
	if err := s.PutEdge(ctx, graph.NewEdge("f", "c1", graph.CausedBy)); err != nil {
		t.Fatalf("PutEdge dup: %v", err)
	}

	for run := 0; run < 10; run++ {
		edges, err := s.GetOutgoingEdges(ctx, "f", graph.CausedBy)
		if err != nil {
			t.Fatalf("GetOutgoingEdges: %v", err)
		}
		if len(edges) != 3 {
			t.Fatalf("edges = %d, want 3", len(edges))
		}
		for i, e := range edges {
			if e.TargetID() != targets[i] {
				t.Fatalf("run %d: edge[%d] = %s, want %s", run, i, e.TargetID(), targets[i])
			}
			if e.SourceID() != "f" || e.Type() != graph.CausedBy {
				t.Fatalf("edge = %+v", e)
			}
		}
	}
}

func TestNoEdgesForUnknownNode(t *testing.T) {
	s := New(newMockStore(), "faultline:")
	edges, err := s.GetOutgoingEdges(context.Background(), "ghost", graph.CausedBy)
	if err != nil {
		t.Fatalf("GetOutgoingEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("edges = %v, want none", edges)
	}
}

func TestFindFaultNode(t *testing.T) {
	ms := newMockStore()
	s := New(ms, "faultline:")
	ctx := context.Background()

	n := graph.NewNode("fault:E-401", graph.FaultCode, "E-401", map[string]string{"code": "E-401"})
	if err := s.PutNode(ctx, n); err != nil {
		t.Fatal(err)
	}

	id, err := s.FindFaultNode(ctx, "e-401")
	if err != nil {
		t.Fatalf("FindFaultNode: %v", err)
	}
	if id != "fault:E-401" {
		t.Errorf("id = %q", id)
	}

	if _, err := s.FindFaultNode(ctx, "ZZ-1"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("unknown code err = %v, want ErrNodeNotFound", err)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	ms := newMockStore()
	ms.hGetAllErr = errors.New("connection reset")
	s := New(ms, "faultline:")

	if _, err := s.GetNode(context.Background(), "x"); !errors.Is(err, ms.hGetAllErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}
