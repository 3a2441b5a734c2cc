package consensus

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
)

// causeGroup collects the opinions naming one normalized cause.
type causeGroup struct {
	display    string // first-seen spelling
	supporters []int  // opinion indexes
	bestConf   float64
}

// merge reconciles successful opinions into one consensus result.
// The dominant cause is the one named by the most opinions; ties break by
// the highest individual opinion confidence, then by normalized cause text
// for reproducibility. Remedies are unioned across all opinions so the
// output stays maximally useful to a technician even under disagreement.
func merge(opinions []diagnosis.ExpertOpinion) (diagnosis.ConsensusResult, error) {
	groups := groupCauses(opinions)
	if len(groups) == 0 {
		return diagnosis.ConsensusResult{}, fmt.Errorf("%w: opinions name no usable causes", domain.ErrGeneratorError)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if len(a.supporters) != len(b.supporters) {
			return len(a.supporters) > len(b.supporters)
		}
		if a.bestConf != b.bestConf {
			return a.bestConf > b.bestConf
		}
		return normalizeText(a.display) < normalizeText(b.display)
	})

	dominant := groups[0]
	level := float64(len(dominant.supporters)) / float64(len(opinions))

	var disagreements []diagnosis.Disagreement
	for _, g := range groups[1:] {
		if len(g.supporters) >= len(dominant.supporters) {
			continue
		}
		names := make([]string, len(g.supporters))
		for i, idx := range g.supporters {
			names[i] = opinions[idx].Expert
		}
		disagreements = append(disagreements, diagnosis.Disagreement{
			Cause:      g.display,
			Supporters: names,
		})
	}

	merged := mergedDiagnosis(opinions, dominant.display)

	return diagnosis.ConsensusResult{
		Diagnosis:      merged,
		Opinions:       opinions,
		ConsensusLevel: level,
		Disagreements:  disagreements,
	}, nil
}

// groupCauses collapses exact and near-duplicate cause strings.
func groupCauses(opinions []diagnosis.ExpertOpinion) []*causeGroup {
	byNorm := make(map[string]*causeGroup)
	var ordered []*causeGroup

	for i := range opinions {
		seen := make(map[string]bool) // one vote per opinion per cause
		for _, cause := range opinions[i].Diagnosis.Causes {
			norm := normalizeText(cause)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true

			g, ok := byNorm[norm]
			if !ok {
				g = &causeGroup{display: strings.TrimSpace(cause)}
				byNorm[norm] = g
				ordered = append(ordered, g)
			}
			g.supporters = append(g.supporters, i)
			if c := opinions[i].Confidence; c > g.bestConf {
				g.bestConf = c
			}
		}
	}
	return ordered
}

// mergedDiagnosis builds the consensus diagnosis: prose fields from the
// highest-confidence opinion, causes ordered dominant-first, remedies and
// component lists unioned.
func mergedDiagnosis(opinions []diagnosis.ExpertOpinion, dominantCause string) diagnosis.FaultDiagnosis {
	best := opinions[0]
	var confSum float64
	for _, o := range opinions {
		confSum += o.Confidence
		if o.Confidence > best.Confidence {
			best = o
		}
	}

	causes := []string{dominantCause}
	causeSeen := map[string]bool{normalizeText(dominantCause): true}
	var remedies, components []string
	remedySeen := make(map[string]bool)
	compSeen := make(map[string]bool)

	for _, o := range opinions {
		for _, c := range o.Diagnosis.Causes {
			if norm := normalizeText(c); norm != "" && !causeSeen[norm] {
				causeSeen[norm] = true
				causes = append(causes, strings.TrimSpace(c))
			}
		}
		for _, r := range o.Diagnosis.Remedies {
			if norm := normalizeText(r); norm != "" && !remedySeen[norm] {
				remedySeen[norm] = true
				remedies = append(remedies, strings.TrimSpace(r))
			}
		}
		for _, c := range o.Diagnosis.RelatedComponents {
			if norm := normalizeText(c); norm != "" && !compSeen[norm] {
				compSeen[norm] = true
				components = append(components, strings.TrimSpace(c))
			}
		}
	}

	return diagnosis.FaultDiagnosis{
		FaultCode:          best.Diagnosis.FaultCode,
		Description:        best.Diagnosis.Description,
		Severity:           best.Diagnosis.Severity,
		Causes:             causes,
		RootCause:          dominantCause,
		Remedies:           remedies,
		RelatedComponents:  components,
		SafetyImplications: best.Diagnosis.SafetyImplications,
		PartsNeeded:        best.Diagnosis.PartsNeeded,
		EstimatedTime:      best.Diagnosis.EstimatedTime,
		Confidence:         confSum / float64(len(opinions)),
	}
}

// normalizeText lowercases, strips punctuation, and collapses whitespace so
// near-duplicate phrasings group together.
func normalizeText(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
