package fusion

import (
	"sort"

	domsearch "github.com/kinetic-field/faultline/internal/domain/search"
)

// DefaultK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const DefaultK = 60

// Engine fuses independently-ranked lexical and vector hit lists.
// It is pure and stateless: safe for concurrent use, deterministic given
// its inputs.
type Engine struct {
	k int
}

// New creates a fusion engine with the given smoothing constant.
// Non-positive k falls back to DefaultK.
func New(k int) *Engine {
	if k <= 0 {
		k = DefaultK
	}
	return &Engine{k: k}
}

// Fuse merges lexical and vector hits via Reciprocal Rank Fusion.
// score(d) = sum of 1/(k + rank_i(d)) over the lists where d appears, with
// 1-based ranks. Output is sorted by fused score descending; ties break by
// the better lexical rank, then by identifier, so the order is total and
// reproducible. When a document appears in both lists, the lexical snippet
// is kept. Output is truncated to limit.
func (e *Engine) Fuse(lexical, vector []domsearch.RankedHit, limit int) []domsearch.FusedResult {
	type scored struct {
		hit     domsearch.RankedHit
		score   float64
		lexRank int // 0 when absent from the lexical list
	}

	merged := make(map[string]*scored)

	for i := range lexical {
		h := lexical[i]
		rank := effectiveRank(&h, i)
		merged[h.ID()] = &scored{hit: h, score: 1.0 / float64(e.k+rank), lexRank: rank}
	}

	for i := range vector {
		h := vector[i]
		rank := effectiveRank(&h, i)
		s := 1.0 / float64(e.k+rank)
		if existing, ok := merged[h.ID()]; ok {
			existing.score += s
			// Lexical hit takes priority for the snippet.
		} else {
			merged[h.ID()] = &scored{hit: h, score: s}
		}
	}

	ordered := make([]*scored, 0, len(merged))
	for _, s := range merged {
		ordered = append(ordered, s)
	}

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.score != b.score {
			return a.score > b.score
		}
		// Lower lexical rank wins; absent (0) sorts after any present rank.
		if a.lexRank != b.lexRank {
			if a.lexRank == 0 {
				return false
			}
			if b.lexRank == 0 {
				return true
			}
			return a.lexRank < b.lexRank
		}
		return a.hit.ID() < b.hit.ID()
	})

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	results := make([]domsearch.FusedResult, len(ordered))
	for i, s := range ordered {
		results[i] = domsearch.NewFused(s.hit, s.score, i+1)
	}
	return results
}

// effectiveRank prefers the hit's own 1-based rank, falling back to list position.
func effectiveRank(h *domsearch.RankedHit, index int) int {
	if r := h.Rank(); r > 0 {
		return r
	}
	return index + 1
}
