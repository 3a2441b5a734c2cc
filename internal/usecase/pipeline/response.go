package pipeline

import (
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
	"github.com/kinetic-field/faultline/internal/domain/graph"
	"github.com/kinetic-field/faultline/internal/domain/route"
	domsearch "github.com/kinetic-field/faultline/internal/domain/search"
)

// SearchHit is one fused result in transport form.
type SearchHit struct {
	ID      string  `json:"id"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
}

// SearchResponse is the outcome of a SEARCH query.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
	Total   int         `json:"total"`
	// Answer is the synthesized grounded answer; empty when not requested
	// or when generation degraded.
	Answer  string   `json:"answer,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// ChainStep is one causal traversal step in transport form.
type ChainStep struct {
	From string `json:"from"`
	Edge string `json:"edge"`
	To   string `json:"to"`
}

// LookupResponse is the outcome of a fault code lookup.
type LookupResponse struct {
	FaultCode   string      `json:"fault_code"`
	Explanation string      `json:"explanation"`
	Causes      []string    `json:"causes,omitempty"`
	Remedies    []string    `json:"remedies,omitempty"`
	Chain       []ChainStep `json:"causal_chain,omitempty"`
}

// QueryResponse is the routed pipeline outcome: exactly one payload is set,
// matching the classified mode.
type QueryResponse struct {
	Mode      route.Mode                `json:"mode"`
	Search    *SearchResponse           `json:"search,omitempty"`
	Lookup    *LookupResponse           `json:"lookup,omitempty"`
	Diagnosis *diagnosis.FaultDiagnosis `json:"diagnosis,omitempty"`
}

func toSearchHits(fused []domsearch.FusedResult) []SearchHit {
	hits := make([]SearchHit, 0, len(fused))
	for i := range fused {
		f := &fused[i]
		h := f.Hit()
		hits = append(hits, SearchHit{
			ID:      h.ID(),
			Rank:    f.FinalRank(),
			Score:   f.Score(),
			Snippet: h.Snippet(),
		})
	}
	return hits
}

func toChainSteps(c *graph.Chain) []ChainStep {
	steps := c.Steps()
	out := make([]ChainStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, ChainStep{
			From: s.From.Name(),
			Edge: string(s.Edge.Type()),
			To:   s.To.Name(),
		})
	}
	return out
}
