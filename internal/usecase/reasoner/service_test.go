package reasoner

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain/graph"
)

func newTestReasoner(store Store) *Service {
	return New(store, zap.NewNop())
}

func TestFindCauses_LinearChain(t *testing.T) {
	ms := newMockStore()
	ms.addNode("F505", graph.FaultCode, "F505")
	ms.addNode("door-sensor", graph.Component, "door sensor")
	ms.addNode("realign", graph.Procedure, "realign sensor")
	ms.addEdge("F505", "door-sensor", graph.CausedBy)
	ms.addEdge("door-sensor", "realign", graph.ResolvedBy)

	chain, err := newTestReasoner(ms).FindCauses(context.Background(), "F505", 3)
	if err != nil {
		t.Fatalf("FindCauses: %v", err)
	}
	if len(chain.Steps()) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(chain.Steps()))
	}

	causes := chain.Causes()
	if len(causes) != 1 || causes[0] != "door sensor" {
		t.Fatalf("unexpected causes: %v", causes)
	}
	remedies := chain.Remedies()
	if len(remedies) != 1 || remedies[0] != "realign sensor" {
		t.Fatalf("unexpected remedies: %v", remedies)
	}
}

func TestFindCauses_CycleTerminates(t *testing.T) {
	ms := newMockStore()
	ms.addNode("A", graph.FaultCode, "A")
	ms.addNode("B", graph.Component, "B")
	ms.addEdge("A", "B", graph.CausedBy)
	ms.addEdge("B", "A", graph.CausedBy)

	chain, err := newTestReasoner(ms).FindCauses(context.Background(), "A", 10)
	if err != nil {
		t.Fatalf("FindCauses: %v", err)
	}

	if len(chain.Steps()) != 1 {
		t.Fatalf("cycle must yield a single step, got %d", len(chain.Steps()))
	}
	if chain.Steps()[0].To.ID() != "B" {
		t.Fatalf("expected step to B, got %s", chain.Steps()[0].To.ID())
	}
}

func TestFindCauses_SelfLoop(t *testing.T) {
	ms := newMockStore()
	ms.addNode("A", graph.FaultCode, "A")
	ms.addEdge("A", "A", graph.CausedBy)

	chain, err := newTestReasoner(ms).FindCauses(context.Background(), "A", 5)
	if err != nil {
		t.Fatalf("FindCauses: %v", err)
	}
	if !chain.Empty() {
		t.Fatalf("self loop must produce no steps, got %d", len(chain.Steps()))
	}
}

func TestFindCauses_DepthBound(t *testing.T) {
	ms := newMockStore()
	ids := []string{"F1", "c1", "c2", "c3", "c4"}
	for _, id := range ids {
		ms.addNode(id, graph.Component, id)
	}
	for i := 0; i < len(ids)-1; i++ {
		ms.addEdge(ids[i], ids[i+1], graph.CausedBy)
	}

	chain, err := newTestReasoner(ms).FindCauses(context.Background(), "F1", 2)
	if err != nil {
		t.Fatalf("FindCauses: %v", err)
	}
	if len(chain.Steps()) != 2 {
		t.Fatalf("depth 2 must yield 2 steps, got %d", len(chain.Steps()))
	}
}

func TestFindCauses_MissingNodeYieldsEmptyChain(t *testing.T) {
	ms := newMockStore()

	chain, err := newTestReasoner(ms).FindCauses(context.Background(), "nope", 3)
	if err != nil {
		t.Fatalf("missing node must not error: %v", err)
	}
	if !chain.Empty() {
		t.Fatal("expected empty chain")
	}
	if chain.FaultID() != "nope" {
		t.Fatalf("chain must keep the queried id, got %s", chain.FaultID())
	}
}

func TestFindCauses_EdgeOrderIsStable(t *testing.T) {
	ms := newMockStore()
	ms.addNode("F1", graph.FaultCode, "F1")
	for _, id := range []string{"first", "second", "third"} {
		ms.addNode(id, graph.Component, id)
		ms.addEdge("F1", id, graph.CausedBy)
	}

	r := newTestReasoner(ms)
	for i := 0; i < 10; i++ {
		chain, err := r.FindCauses(context.Background(), "F1", 1)
		if err != nil {
			t.Fatalf("FindCauses: %v", err)
		}
		got := chain.Causes()
		want := []string{"first", "second", "third"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("unstable order: got %v, want %v", got, want)
			}
		}
	}
}

func TestFindCauses_DanglingEdgeSkipped(t *testing.T) {
	ms := newMockStore()
	ms.addNode("F1", graph.FaultCode, "F1")
	ms.addNode("ok", graph.Component, "ok")
	ms.addEdge("F1", "ghost", graph.CausedBy) // target never added
	ms.addEdge("F1", "ok", graph.CausedBy)

	chain, err := newTestReasoner(ms).FindCauses(context.Background(), "F1", 2)
	if err != nil {
		t.Fatalf("FindCauses: %v", err)
	}
	if len(chain.Steps()) != 1 || chain.Steps()[0].To.ID() != "ok" {
		t.Fatalf("expected only the resolvable edge, got %+v", chain.Steps())
	}
}

func TestFindCauses_StoreErrorPropagates(t *testing.T) {
	ms := newMockStore()
	ms.addNode("F1", graph.FaultCode, "F1")
	ms.edgesErr = errors.New("store down")

	if _, err := newTestReasoner(ms).FindCauses(context.Background(), "F1", 2); err == nil {
		t.Fatal("expected store error to propagate")
	}
}
