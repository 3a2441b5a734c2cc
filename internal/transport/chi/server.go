// Package chi exposes the query pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
	"github.com/kinetic-field/faultline/internal/domain/graph"
	"github.com/kinetic-field/faultline/internal/domain/query"
	searchrepo "github.com/kinetic-field/faultline/internal/repository/search"
	pipelineuc "github.com/kinetic-field/faultline/internal/usecase/pipeline"
)

// Pipeline is the orchestration surface the server exposes.
type Pipeline interface {
	Execute(ctx context.Context, q *query.Query, limit int) (pipelineuc.QueryResponse, error)
	Search(ctx context.Context, q *query.Query, limit int) (pipelineuc.SearchResponse, error)
	LookupFault(ctx context.Context, code, manufacturer string) (pipelineuc.LookupResponse, error)
	Diagnose(ctx context.Context, req pipelineuc.DiagnoseRequest) (diagnosis.FaultDiagnosis, error)
	ConsensusDiagnose(ctx context.Context, req pipelineuc.DiagnoseRequest, expertCount int) (diagnosis.ConsensusResult, error)
}

// Ingester loads documents and graph data into the backing stores.
type Ingester interface {
	PutDocuments(ctx context.Context, docs []searchrepo.Document) error
	PutGraph(ctx context.Context, nodes []graph.Node, edges []graph.Edge) error
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorCode is the machine-readable error discriminator in responses.
type errorCode string

const (
	codeBadRequest              errorCode = "bad_request"
	codeInvalidInput            errorCode = "invalid_input"
	codeFaultNotFound           errorCode = "fault_not_found"
	codeRateLimited             errorCode = "rate_limited"
	codeCollaboratorTimeout     errorCode = "collaborator_timeout"
	codeCollaboratorUnavailable errorCode = "collaborator_unavailable"
	codeGeneratorError          errorCode = "generator_error"
	codeAllExpertsFailed        errorCode = "all_experts_failed"
	codeAllSourcesFailed        errorCode = "all_sources_failed"
	codeInternalError           errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the pipeline HTTP API.
type Server struct {
	pipeline      Pipeline
	ingester      Ingester
	db            Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. db may be nil, in which case the
// health endpoint reports only process liveness.
func NewServer(pipeline Pipeline, ingester Ingester, db Pinger, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		ingester: ingester,
		db:       db,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		expertFailureHandler,
		sentinelHandler(domain.ErrInputInvalid, http.StatusBadRequest, codeInvalidInput),
		sentinelHandler(domain.ErrNodeNotFound, http.StatusNotFound, codeFaultNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrCollaboratorTimeout, http.StatusGatewayTimeout, codeCollaboratorTimeout),
		sentinelHandler(domain.ErrAllSourcesFailed, http.StatusServiceUnavailable, codeAllSourcesFailed),
		sentinelHandler(domain.ErrAllExpertsFailed, http.StatusBadGateway, codeAllExpertsFailed),
		sentinelHandler(domain.ErrCollaboratorUnavailable, http.StatusBadGateway, codeCollaboratorUnavailable),
		sentinelHandler(domain.ErrGeneratorError, http.StatusBadGateway, codeGeneratorError),
	}
	return s
}

// Register mounts the API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/v1/query", s.ExecuteQuery)
	r.Post("/api/v1/search", s.Search)
	r.Get("/api/v1/faults/{code}", s.LookupFault)
	r.Post("/api/v1/diagnose", s.Diagnose)
	r.Post("/api/v1/diagnose/consensus", s.ConsensusDiagnose)
	r.Post("/api/v1/documents", s.PutDocuments)
	r.Post("/api/v1/graph", s.PutGraph)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type queryRequest struct {
	Query            string `json:"query"`
	Manufacturer     string `json:"manufacturer,omitempty"`
	EquipmentType    string `json:"equipment_type,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	SynthesizeAnswer bool   `json:"synthesize_answer,omitempty"`
}

// ExecuteQuery handles POST /api/v1/query: classify and dispatch.
func (s *Server) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	q, err := query.New(req.Query, req.Manufacturer, req.EquipmentType, nil, req.SynthesizeAnswer)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.pipeline.Execute(r.Context(), &q, req.Limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	q, err := query.New(req.Query, req.Manufacturer, req.EquipmentType, nil, req.SynthesizeAnswer)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.pipeline.Search(r.Context(), &q, req.Limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// LookupFault handles GET /api/v1/faults/{code}.
func (s *Server) LookupFault(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	manufacturer := r.URL.Query().Get("manufacturer")

	resp, err := s.pipeline.LookupFault(r.Context(), code, manufacturer)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type diagnoseRequest struct {
	FaultCode     string   `json:"fault_code,omitempty"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	EquipmentType string   `json:"equipment_type,omitempty"`
	Symptoms      []string `json:"symptoms,omitempty"`
	Mode          string   `json:"mode,omitempty"`
	Experts       int      `json:"experts,omitempty"`
}

func (req *diagnoseRequest) toUsecase() pipelineuc.DiagnoseRequest {
	return pipelineuc.DiagnoseRequest{
		FaultCode:    req.FaultCode,
		Manufacturer: req.Manufacturer,
		Equipment:    req.EquipmentType,
		Symptoms:     req.Symptoms,
		Mode:         diagnosis.Mode(req.Mode),
	}
}

// Diagnose handles POST /api/v1/diagnose: one expert pass.
func (s *Server) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	fd, err := s.pipeline.Diagnose(r.Context(), req.toUsecase())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fd)
}

// ConsensusDiagnose handles POST /api/v1/diagnose/consensus: expert fan-out.
func (s *Server) ConsensusDiagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Experts < 0 {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "experts must not be negative")
		return
	}

	cr, err := s.pipeline.ConsensusDiagnose(r.Context(), req.toUsecase(), req.Experts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cr)
}

type documentDTO struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	Content       string `json:"content"`
	Manufacturer  string `json:"manufacturer,omitempty"`
	EquipmentType string `json:"equipment_type,omitempty"`
	FaultCode     string `json:"fault_code,omitempty"`
}

type putDocumentsRequest struct {
	Documents []documentDTO `json:"documents"`
}

// PutDocuments handles POST /api/v1/documents: embed and index a batch.
func (s *Server) PutDocuments(w http.ResponseWriter, r *http.Request) {
	var req putDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	docs := make([]searchrepo.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, searchrepo.Document{
			ID:           d.ID,
			Title:        d.Title,
			Content:      d.Content,
			Manufacturer: d.Manufacturer,
			Equipment:    d.EquipmentType,
			FaultCode:    d.FaultCode,
		})
	}

	if err := s.ingester.PutDocuments(r.Context(), docs); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"ingested": len(docs)})
}

type nodeDTO struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

type edgeDTO struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type putGraphRequest struct {
	Nodes []nodeDTO `json:"nodes"`
	Edges []edgeDTO `json:"edges"`
}

// PutGraph handles POST /api/v1/graph: load knowledge graph nodes and edges.
func (s *Server) PutGraph(w http.ResponseWriter, r *http.Request) {
	var req putGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	nodes := make([]graph.Node, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		nodes = append(nodes, graph.NewNode(n.ID, graph.NodeType(n.Type), n.Name, n.Properties))
	}
	edges := make([]graph.Edge, 0, len(req.Edges))
	for _, e := range req.Edges {
		edges = append(edges, graph.NewEdge(e.Source, e.Target, graph.EdgeType(e.Type)))
	}

	if err := s.ingester.PutGraph(r.Context(), nodes, edges); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"nodes": len(nodes), "edges": len(edges)})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy"}
	status := http.StatusOK

	if s.db != nil {
		resp.Checks = map[string]string{"database": "healthy"}
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Warn("database health check failed", zap.Error(err))
			resp.Status = "unhealthy"
			resp.Checks["database"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message without exposing internals.
// Sentinel matches keep the sentinel text plus any wrapped detail that is
// already domain-level.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInputInvalid,
		domain.ErrNodeNotFound,
		domain.ErrRateLimited,
		domain.ErrCollaboratorTimeout,
		domain.ErrAllSourcesFailed,
		domain.ErrAllExpertsFailed,
		domain.ErrCollaboratorUnavailable,
		domain.ErrGeneratorError,
	}
	// Validation and lookup detail is safe and useful to the caller.
	if errors.Is(err, domain.ErrInputInvalid) || errors.Is(err, domain.ErrNodeNotFound) {
		return err.Error()
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// expertFailureHandler handles ErrAllExpertsFailed with the attempted pass
// count attached.
func expertFailureHandler(w http.ResponseWriter, err error, _ string) bool {
	var efe *domain.ExpertFailureError
	if !errors.As(err, &efe) {
		return false
	}
	writeError(w, http.StatusBadGateway, codeAllExpertsFailed,
		domain.ErrAllExpertsFailed.Error()+" ("+strconv.Itoa(efe.Attempted)+" passes attempted)")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
