package search

// RankedHit is a single hit from one retrieval source. Rank is 1-based
// within that source's ordering.
type RankedHit struct {
	id      string
	rank    int
	score   float64
	snippet string
}

// NewHit creates a ranked hit.
func NewHit(id string, rank int, score float64, snippet string) RankedHit {
	return RankedHit{id: id, rank: rank, score: score, snippet: snippet}
}

// ID returns the document identifier.
func (h *RankedHit) ID() string { return h.id }

// Rank returns the 1-based source rank.
func (h *RankedHit) Rank() int { return h.rank }

// Score returns the source-specific relevance score.
func (h *RankedHit) Score() float64 { return h.score }

// Snippet returns the payload snippet.
func (h *RankedHit) Snippet() string { return h.snippet }

// FusedResult is a hit with its fused score; slice order is final rank order.
type FusedResult struct {
	hit       RankedHit
	fused     float64
	finalRank int
}

// NewFused creates a fused result.
func NewFused(hit RankedHit, fused float64, finalRank int) FusedResult {
	return FusedResult{hit: hit, fused: fused, finalRank: finalRank}
}

// Hit returns the underlying hit.
func (f *FusedResult) Hit() RankedHit { return f.hit }

// Score returns the fused RRF score.
func (f *FusedResult) Score() float64 { return f.fused }

// FinalRank returns the 1-based rank after fusion.
func (f *FusedResult) FinalRank() int { return f.finalRank }
