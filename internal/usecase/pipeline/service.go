// Package pipeline orchestrates routed fault queries end to end: it
// classifies the query, runs the retrieval or diagnosis path the mode
// calls for, and caches responses by query fingerprint.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
	"github.com/kinetic-field/faultline/internal/domain/graph"
	"github.com/kinetic-field/faultline/internal/domain/query"
	"github.com/kinetic-field/faultline/internal/domain/route"
	domsearch "github.com/kinetic-field/faultline/internal/domain/search"
	"github.com/kinetic-field/faultline/internal/metrics"
	"github.com/kinetic-field/faultline/internal/usecase/consensus"
	"github.com/kinetic-field/faultline/internal/usecase/router"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTopK     = 20
	DefaultLimit    = 10
	DefaultMaxLimit = 50
	DefaultCacheTTL = time.Hour
)

// Config tunes the orchestration layer.
type Config struct {
	// TopK is how many hits each retrieval source contributes before
	// fusion.
	TopK int
	// DefaultLimit applies when the caller passes no result limit,
	// MaxLimit caps what the caller may ask for.
	DefaultLimit int
	MaxLimit     int
	// CacheTTL bounds how long a cached response stays valid.
	CacheTTL time.Duration
	// MaxDepth bounds causal chain traversal; zero means the reasoner
	// default.
	MaxDepth int
}

// Deps carries the pipeline collaborators. Generator may be nil, in
// which case lookup explanations and search answers fall back to
// template text and results-only responses.
type Deps struct {
	Router      Router
	Cache       Cache
	Lexical     LexicalSearcher
	Vector      VectorSearcher
	Embedder    Embedder
	Fuser       Fuser
	Faults      FaultFinder
	Reasoner    Reasoner
	Synthesizer Synthesizer
	Generator   Generator
}

// Service is the query orchestration pipeline.
type Service struct {
	router    Router
	cache     Cache
	lexical   LexicalSearcher
	vector    VectorSearcher
	embedder  Embedder
	fuser     Fuser
	faults    FaultFinder
	reasoner  Reasoner
	synth     Synthesizer
	generator Generator
	cfg       Config
	logger    *zap.Logger
}

// New creates the pipeline service, clamping zero config fields to
// defaults.
func New(d Deps, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Service{
		router:    d.Router,
		cache:     d.Cache,
		lexical:   d.Lexical,
		vector:    d.Vector,
		embedder:  d.Embedder,
		fuser:     d.Fuser,
		faults:    d.Faults,
		reasoner:  d.Reasoner,
		synth:     d.Synthesizer,
		generator: d.Generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Execute classifies the query and dispatches it to the matching
// pipeline path. The response carries exactly one payload.
func (s *Service) Execute(ctx context.Context, q *query.Query, limit int) (QueryResponse, error) {
	mode := s.router.Classify(ctx, q)

	switch mode {
	case route.Lookup:
		code := router.ExtractFaultCode(q.Text())
		if code == "" {
			// Classified as a lookup but no code survived extraction;
			// retrieval still gives a useful answer.
			return s.executeSearch(ctx, q, limit)
		}
		lr, err := s.LookupFault(ctx, code, q.Manufacturer())
		if err != nil {
			return QueryResponse{}, err
		}
		return QueryResponse{Mode: route.Lookup, Lookup: &lr}, nil

	case route.Diagnosis, route.SafetyAnalysis, route.MaintenanceAnalysis:
		fd, err := s.Diagnose(ctx, DiagnoseRequest{
			FaultCode:    router.ExtractFaultCode(q.Text()),
			Manufacturer: q.Manufacturer(),
			Equipment:    q.EquipmentType(),
			Symptoms:     []string{q.Text()},
			Mode:         diagModeFor(mode),
		})
		if err != nil {
			return QueryResponse{}, err
		}
		return QueryResponse{Mode: mode, Diagnosis: &fd}, nil

	default:
		return s.executeSearch(ctx, q, limit)
	}
}

func (s *Service) executeSearch(ctx context.Context, q *query.Query, limit int) (QueryResponse, error) {
	sr, err := s.Search(ctx, q, limit)
	if err != nil {
		return QueryResponse{}, err
	}
	return QueryResponse{Mode: route.Search, Search: &sr}, nil
}

// Search runs lexical and vector retrieval concurrently, fuses the two
// rankings, and optionally synthesizes a grounded answer. A single
// failed source degrades to the surviving one; both failing is an
// error.
func (s *Service) Search(ctx context.Context, q *query.Query, limit int) (resp SearchResponse, err error) {
	done := s.observe(route.Search, time.Now())
	defer func() { done(err) }()

	if strings.TrimSpace(q.Text()) == "" {
		return SearchResponse{}, fmt.Errorf("%w: empty query text", domain.ErrInputInvalid)
	}
	limit = s.clampLimit(limit)

	payload, err := s.cache.GetOrCompute(ctx, q.Fingerprint(route.Search), s.cfg.CacheTTL,
		func(ctx context.Context) ([]byte, error) {
			r, err := s.search(ctx, q, limit)
			if err != nil {
				return nil, err
			}
			return json.Marshal(r)
		})
	if err != nil {
		return SearchResponse{}, err
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return SearchResponse{}, fmt.Errorf("decode cached search response: %w", err)
	}
	return resp, nil
}

func (s *Service) search(ctx context.Context, q *query.Query, limit int) (SearchResponse, error) {
	fused, err := s.retrieveFused(ctx, q, limit)
	if err != nil {
		return SearchResponse{}, err
	}

	resp := SearchResponse{
		Results: toSearchHits(fused),
		Total:   len(fused),
	}
	if q.Synthesize() && len(fused) > 0 {
		resp.Answer, resp.Sources = s.synthesizeAnswer(ctx, q.Text(), fused)
	}
	return resp, nil
}

// retrieveFused fans out to both retrieval sources and fuses whatever
// came back.
func (s *Service) retrieveFused(ctx context.Context, q *query.Query, limit int) ([]domsearch.FusedResult, error) {
	var (
		wg      sync.WaitGroup
		lexHits []domsearch.RankedHit
		vecHits []domsearch.RankedHit
		lexErr  error
		vecErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexHits, lexErr = s.lexical.SearchLexical(
			ctx, q.Text(), q.Manufacturer(), q.EquipmentType(), s.cfg.TopK,
		)
	}()
	go func() {
		defer wg.Done()
		emb, err := s.embedder.Embed(ctx, q.Text())
		if err != nil {
			vecErr = fmt.Errorf("vectorize query: %w", err)
			return
		}
		vecHits, vecErr = s.vector.SearchVector(
			ctx, emb.Embedding, q.Manufacturer(), q.EquipmentType(), s.cfg.TopK,
		)
	}()
	wg.Wait()

	if lexErr != nil && vecErr != nil {
		return nil, fmt.Errorf("%w: lexical: %v; vector: %v",
			domain.ErrAllSourcesFailed, lexErr, vecErr)
	}
	if lexErr != nil {
		s.logger.Warn("lexical search failed, degrading to vector only", zap.Error(lexErr))
		lexHits = nil
	}
	if vecErr != nil {
		s.logger.Warn("vector search failed, degrading to lexical only", zap.Error(vecErr))
		vecHits = nil
	}

	return s.fuser.Fuse(lexHits, vecHits, limit), nil
}

// synthesizeAnswer generates a grounded answer from the fused snippets.
// Generation failures degrade to a results-only response.
func (s *Service) synthesizeAnswer(ctx context.Context, question string, fused []domsearch.FusedResult) (string, []string) {
	if s.generator == nil {
		return "", nil
	}
	res, err := s.generator.Generate(ctx, domain.GenerateRequest{
		System: answerSystem,
		Prompt: buildAnswerPrompt(question, fused),
	})
	if err != nil {
		s.logger.Warn("answer synthesis failed, returning results only", zap.Error(err))
		return "", nil
	}
	sources := make([]string, 0, len(fused))
	for i := range fused {
		h := fused[i].Hit()
		sources = append(sources, h.ID())
	}
	return res.Text, sources
}

// LookupFault resolves a fault code to its causal chain and a short
// explanation. An unknown code surfaces domain.ErrNodeNotFound.
func (s *Service) LookupFault(ctx context.Context, code, manufacturer string) (resp LookupResponse, err error) {
	done := s.observe(route.Lookup, time.Now())
	defer func() { done(err) }()

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return LookupResponse{}, fmt.Errorf("%w: empty fault code", domain.ErrInputInvalid)
	}

	q, err := query.New(code, manufacturer, "", nil, false)
	if err != nil {
		return LookupResponse{}, fmt.Errorf("%w: %v", domain.ErrInputInvalid, err)
	}

	payload, err := s.cache.GetOrCompute(ctx, q.Fingerprint(route.Lookup), s.cfg.CacheTTL,
		func(ctx context.Context) ([]byte, error) {
			r, err := s.lookup(ctx, code, manufacturer)
			if err != nil {
				return nil, err
			}
			return json.Marshal(r)
		})
	if err != nil {
		return LookupResponse{}, err
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return LookupResponse{}, fmt.Errorf("decode cached lookup response: %w", err)
	}
	return resp, nil
}

func (s *Service) lookup(ctx context.Context, code, manufacturer string) (LookupResponse, error) {
	nodeID, err := s.faults.FindFaultNode(ctx, code)
	if err != nil {
		return LookupResponse{}, fmt.Errorf("resolve fault code %s: %w", code, err)
	}
	chain, err := s.reasoner.FindCauses(ctx, nodeID, s.cfg.MaxDepth)
	if err != nil {
		return LookupResponse{}, fmt.Errorf("trace causes for %s: %w", code, err)
	}

	return LookupResponse{
		FaultCode:   code,
		Explanation: s.explain(ctx, code, manufacturer, &chain),
		Causes:      chain.Causes(),
		Remedies:    chain.Remedies(),
		Chain:       toChainSteps(&chain),
	}, nil
}

// explain asks the generator for a short explanation, degrading to
// template text built from the chain.
func (s *Service) explain(ctx context.Context, code, manufacturer string, chain *graph.Chain) string {
	if s.generator == nil {
		return templateExplanation(code, chain)
	}
	res, err := s.generator.Generate(ctx, domain.GenerateRequest{
		System: explanationSystem,
		Prompt: buildExplanationPrompt(code, manufacturer, chain),
	})
	if err != nil {
		s.logger.Warn("explanation generation failed, using template",
			zap.String("fault_code", code), zap.Error(err))
		return templateExplanation(code, chain)
	}
	return strings.TrimSpace(res.Text)
}

// DiagnoseRequest describes one diagnosis call. FaultCode may be empty
// when at least one symptom is given.
type DiagnoseRequest struct {
	FaultCode    string
	Manufacturer string
	Equipment    string
	Symptoms     []string
	Mode         diagnosis.Mode
}

func (r *DiagnoseRequest) validate() error {
	if strings.TrimSpace(r.FaultCode) == "" && len(r.Symptoms) == 0 {
		return fmt.Errorf("%w: fault code or symptoms required", domain.ErrInputInvalid)
	}
	if r.Mode != "" && !r.Mode.IsValid() {
		return fmt.Errorf("%w: unknown diagnosis mode %q", domain.ErrInputInvalid, r.Mode)
	}
	return nil
}

// Diagnose runs a single expert pass enriched with graph context and
// returns the merged diagnosis.
func (s *Service) Diagnose(ctx context.Context, req DiagnoseRequest) (fd diagnosis.FaultDiagnosis, err error) {
	mode := req.Mode
	if mode == "" {
		mode = diagnosis.Detailed
	}
	rm := routeModeFor(mode)
	done := s.observe(rm, time.Now())
	defer func() { done(err) }()

	if err := req.validate(); err != nil {
		return diagnosis.FaultDiagnosis{}, err
	}

	q, err := query.New(diagnosisText(&req), req.Manufacturer, req.Equipment, nil, false)
	if err != nil {
		return diagnosis.FaultDiagnosis{}, fmt.Errorf("%w: %v", domain.ErrInputInvalid, err)
	}

	payload, err := s.cache.GetOrCompute(ctx, q.Fingerprint(rm), s.cfg.CacheTTL,
		func(ctx context.Context) ([]byte, error) {
			result, err := s.synthesize(ctx, &req, mode, 1)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result.Diagnosis)
		})
	if err != nil {
		return diagnosis.FaultDiagnosis{}, err
	}
	if err := json.Unmarshal(payload, &fd); err != nil {
		return diagnosis.FaultDiagnosis{}, fmt.Errorf("decode cached diagnosis: %w", err)
	}
	return fd, nil
}

// ConsensusDiagnose runs expertCount concurrent passes and merges them.
// Responses are never cached: passes sample at distinct temperatures,
// so two identical calls may legitimately disagree.
func (s *Service) ConsensusDiagnose(ctx context.Context, req DiagnoseRequest, expertCount int) (cr diagnosis.ConsensusResult, err error) {
	done := s.observe(consensusMode, time.Now())
	defer func() { done(err) }()

	if err := req.validate(); err != nil {
		return diagnosis.ConsensusResult{}, err
	}
	mode := req.Mode
	if mode == "" {
		mode = diagnosis.Detailed
	}
	return s.synthesize(ctx, &req, mode, expertCount)
}

// synthesize enriches the fault context with the causal chain, when the
// code resolves, and delegates to the synthesizer.
func (s *Service) synthesize(ctx context.Context, req *DiagnoseRequest, mode diagnosis.Mode, expertCount int) (diagnosis.ConsensusResult, error) {
	fc := &consensus.FaultContext{
		FaultCode:    strings.ToUpper(strings.TrimSpace(req.FaultCode)),
		Manufacturer: req.Manufacturer,
		Equipment:    req.Equipment,
		Symptoms:     req.Symptoms,
		GraphContext: s.graphContext(ctx, req.FaultCode),
		Mode:         string(mode),
	}
	return s.synth.Synthesize(ctx, fc, expertCount)
}

// graphContext renders the causal chain for the code, or "" when the
// code is empty, unknown, or the graph is unreachable. Diagnosis
// proceeds either way.
func (s *Service) graphContext(ctx context.Context, code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	nodeID, err := s.faults.FindFaultNode(ctx, code)
	if err != nil {
		s.logger.Debug("no graph node for fault code",
			zap.String("fault_code", code), zap.Error(err))
		return ""
	}
	chain, err := s.reasoner.FindCauses(ctx, nodeID, s.cfg.MaxDepth)
	if err != nil {
		s.logger.Warn("causal chain traversal failed",
			zap.String("fault_code", code), zap.Error(err))
		return ""
	}
	if chain.Empty() {
		return ""
	}
	return chain.String()
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// consensusMode labels consensus requests in metrics; it is not a
// routable query mode.
const consensusMode route.Mode = "consensus"

func (s *Service) observe(mode route.Mode, start time.Time) func(error) {
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.PipelineRequestsTotal.WithLabelValues(string(mode), status).Inc()
		metrics.PipelineDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}
}

func diagnosisText(req *DiagnoseRequest) string {
	parts := make([]string, 0, len(req.Symptoms)+1)
	if c := strings.TrimSpace(req.FaultCode); c != "" {
		parts = append(parts, strings.ToUpper(c))
	}
	parts = append(parts, req.Symptoms...)
	return strings.Join(parts, " ")
}

func diagModeFor(m route.Mode) diagnosis.Mode {
	switch m {
	case route.SafetyAnalysis:
		return diagnosis.Safety
	case route.MaintenanceAnalysis:
		return diagnosis.Maintenance
	default:
		return diagnosis.Detailed
	}
}

func routeModeFor(m diagnosis.Mode) route.Mode {
	switch m {
	case diagnosis.Safety:
		return route.SafetyAnalysis
	case diagnosis.Maintenance:
		return route.MaintenanceAnalysis
	default:
		return route.Diagnosis
	}
}
