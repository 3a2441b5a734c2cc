package graphmem

import (
	"context"
	"errors"
	"testing"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/graph"
)

func TestGetNode(t *testing.T) {
	s := New()
	n := graph.NewNode("fault:E-401", graph.FaultCode, "E-401", map[string]string{"code": "E-401"})
	if err := s.AddNode(n); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	got, err := s.GetNode(context.Background(), "fault:E-401")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Name() != "E-401" || got.Type() != graph.FaultCode {
		t.Errorf("node = %s/%s", got.Name(), got.Type())
	}

	if _, err := s.GetNode(context.Background(), "missing"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("missing node err = %v, want ErrNodeNotFound", err)
	}
}

func TestOutgoingEdgesKeepInsertionOrder(t *testing.T) {
	s := New()
	if err := s.AddNode(graph.NewNode("f", graph.FaultCode, "F-1", nil)); err != nil {
		t.Fatal(err)
	}
	targets := []string{"c3", "c1", "c2"}
	for _, tgt := range targets {
		if err := s.AddEdge(graph.NewEdge("f", tgt, graph.CausedBy)); err != nil {
			t.Fatalf("AddEdge %s: %v", tgt, err)
		}
	}

	for run := 0; run < 10; run++ {
		edges, err := s.GetOutgoingEdges(context.Background(), "f", graph.CausedBy)
		if err != nil {
			t.Fatalf("GetOutgoingEdges: %v", err)
		}
		if len(edges) != 3 {
			t.Fatalf("edges = %d, want 3", len(edges))
		}
		for i, e := range edges {
			if e.TargetID() != targets[i] {
				t.Fatalf("run %d: edge[%d] target = %s, want %s", run, i, e.TargetID(), targets[i])
			}
		}
	}
}

func TestEdgesFilteredByType(t *testing.T) {
	s := New()
	if err := s.AddNode(graph.NewNode("f", graph.FaultCode, "F-1", nil)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEdge(graph.NewEdge("f", "cause", graph.CausedBy)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEdge(graph.NewEdge("f", "fix", graph.ResolvedBy)); err != nil {
		t.Fatal(err)
	}

	caused, _ := s.GetOutgoingEdges(context.Background(), "f", graph.CausedBy)
	resolved, _ := s.GetOutgoingEdges(context.Background(), "f", graph.ResolvedBy)
	if len(caused) != 1 || caused[0].TargetID() != "cause" {
		t.Errorf("caused = %+v", caused)
	}
	if len(resolved) != 1 || resolved[0].TargetID() != "fix" {
		t.Errorf("resolved = %+v", resolved)
	}
}

func TestAddEdgeRequiresSource(t *testing.T) {
	s := New()
	err := s.AddEdge(graph.NewEdge("ghost", "x", graph.CausedBy))
	if !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestFindFaultNode(t *testing.T) {
	s := New()
	n := graph.NewNode("fault:E-401", graph.FaultCode, "Door zone fault", map[string]string{"code": "E-401"})
	if err := s.AddNode(n); err != nil {
		t.Fatal(err)
	}

	cases := []string{"E-401", "e-401", "  e-401  "}
	for _, code := range cases {
		id, err := s.FindFaultNode(context.Background(), code)
		if err != nil {
			t.Fatalf("FindFaultNode(%q): %v", code, err)
		}
		if id != "fault:E-401" {
			t.Errorf("FindFaultNode(%q) = %q", code, id)
		}
	}

	if _, err := s.FindFaultNode(context.Background(), "ZZ-999"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("unknown code err = %v, want ErrNodeNotFound", err)
	}
}
