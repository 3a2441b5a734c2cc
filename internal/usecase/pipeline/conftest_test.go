package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
	"github.com/kinetic-field/faultline/internal/domain/graph"
	"github.com/kinetic-field/faultline/internal/domain/query"
	"github.com/kinetic-field/faultline/internal/domain/route"
	domsearch "github.com/kinetic-field/faultline/internal/domain/search"
	"github.com/kinetic-field/faultline/internal/usecase/consensus"
	"github.com/kinetic-field/faultline/internal/usecase/fusion"
)

type mockRouter struct {
	mode route.Mode
}

func (m *mockRouter) Classify(_ context.Context, _ *query.Query) route.Mode {
	return m.mode
}

type mockLexical struct {
	mu    sync.Mutex
	hits  []domsearch.RankedHit
	err   error
	calls int
}

func (m *mockLexical) SearchLexical(_ context.Context, _, _, _ string, _ int) ([]domsearch.RankedHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.hits, m.err
}

func (m *mockLexical) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockVector struct {
	mu    sync.Mutex
	hits  []domsearch.RankedHit
	err   error
	calls int
}

func (m *mockVector) SearchVector(_ context.Context, _ []float32, _, _ string, _ int) ([]domsearch.RankedHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.hits, m.err
}

func (m *mockVector) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: 4}, nil
}

type mockFaults struct {
	nodeID string
	err    error
	calls  int
}

func (m *mockFaults) FindFaultNode(_ context.Context, _ string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.nodeID, nil
}

type mockReasoner struct {
	chain    graph.Chain
	err      error
	gotDepth int
}

func (m *mockReasoner) FindCauses(_ context.Context, _ string, maxDepth int) (graph.Chain, error) {
	m.gotDepth = maxDepth
	if m.err != nil {
		return graph.Chain{}, m.err
	}
	return m.chain, nil
}

type mockSynth struct {
	result   diagnosis.ConsensusResult
	err      error
	gotFC    *consensus.FaultContext
	gotCount int
}

func (m *mockSynth) Synthesize(_ context.Context, fc *consensus.FaultContext, expertCount int) (diagnosis.ConsensusResult, error) {
	m.gotFC = fc
	m.gotCount = expertCount
	if m.err != nil {
		return diagnosis.ConsensusResult{}, m.err
	}
	return m.result, nil
}

type mockGenerator struct {
	text   string
	err    error
	gotReq domain.GenerateRequest
	calls  int
}

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	m.calls++
	m.gotReq = req
	if m.err != nil {
		return domain.GenerateResult{}, m.err
	}
	return domain.GenerateResult{Text: m.text, TotalTokens: 20}, nil
}

// passCache always invokes compute, so tests exercise the real path.
type passCache struct {
	computes int
}

func (c *passCache) GetOrCompute(ctx context.Context, _ string, _ time.Duration,
	compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	c.computes++
	return compute(ctx)
}

// seededCache serves a fixed payload without ever computing.
type seededCache struct {
	payload []byte
}

func (c *seededCache) GetOrCompute(_ context.Context, _ string, _ time.Duration,
	_ func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return c.payload, nil
}

type deps struct {
	router   *mockRouter
	cache    *passCache
	lexical  *mockLexical
	vector   *mockVector
	embedder *mockEmbedder
	faults   *mockFaults
	reasoner *mockReasoner
	synth    *mockSynth
	gen      *mockGenerator
}

func newDeps() *deps {
	return &deps{
		router:   &mockRouter{mode: route.Search},
		cache:    &passCache{},
		lexical:  &mockLexical{},
		vector:   &mockVector{},
		embedder: &mockEmbedder{vec: []float32{0.1, 0.2}},
		faults:   &mockFaults{},
		reasoner: &mockReasoner{},
		synth:    &mockSynth{},
		gen:      &mockGenerator{text: "generated text"},
	}
}

func (d *deps) service(cfg Config) *Service {
	return New(Deps{
		Router:      d.router,
		Cache:       d.cache,
		Lexical:     d.lexical,
		Vector:      d.vector,
		Embedder:    d.embedder,
		Fuser:       fusion.New(0),
		Faults:      d.faults,
		Reasoner:    d.reasoner,
		Synthesizer: d.synth,
		Generator:   d.gen,
	}, cfg, zap.NewNop())
}

func hit(id string, rank int, score float64) domsearch.RankedHit {
	return domsearch.NewHit(id, rank, score, "snippet for "+id)
}

func mustQuery(text, manufacturer, equipment string, synthesize bool) *query.Query {
	q, err := query.New(text, manufacturer, equipment, nil, synthesize)
	if err != nil {
		panic(err)
	}
	return &q
}

func causalChain(faultID string) graph.Chain {
	fault := graph.NewNode(faultID, graph.FaultCode, "E42", map[string]string{"code": "E42"})
	cause := graph.NewNode("comp-1", graph.Component, "door sensor", nil)
	fix := graph.NewNode("proc-1", graph.Procedure, "realign sensor", nil)
	return graph.NewChain(faultID, []graph.Step{
		{From: fault, Edge: graph.NewEdge(faultID, "comp-1", graph.CausedBy), To: cause},
		{From: cause, Edge: graph.NewEdge("comp-1", "proc-1", graph.ResolvedBy), To: fix},
	})
}
