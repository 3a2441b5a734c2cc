package pipeline

import (
	"fmt"
	"strings"

	"github.com/kinetic-field/faultline/internal/domain/graph"
	domsearch "github.com/kinetic-field/faultline/internal/domain/search"
)

const answerSystem = "You are an elevator and escalator maintenance assistant. " +
	"Answer strictly from the provided excerpts and cite nothing else."

// buildAnswerPrompt grounds the synthesized answer in the top fused
// snippets.
func buildAnswerPrompt(question string, fused []domsearch.FusedResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only these excerpts.\n\n")
	for i := range fused {
		h := fused[i].Hit()
		if h.Snippet() == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", h.ID(), h.Snippet())
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", question)
	b.WriteString("If the excerpts do not contain the answer, say so.")
	return b.String()
}

const explanationSystem = "You are an elevator and escalator fault reference. " +
	"Explain fault codes concisely for a field technician."

// buildExplanationPrompt asks for a lookup explanation grounded in the
// causal chain when one exists.
func buildExplanationPrompt(code, manufacturer string, chain *graph.Chain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Explain fault code %s", code)
	if manufacturer != "" {
		fmt.Fprintf(&b, " (%s)", manufacturer)
	}
	b.WriteString(" in two or three sentences.\n")
	if !chain.Empty() {
		fmt.Fprintf(&b, "\nKnown causal relationships:\n%s\n", chain.String())
	}
	return b.String()
}

// templateExplanation renders a lookup explanation without a generator,
// from the chain alone.
func templateExplanation(code string, chain *graph.Chain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fault %s.", code)
	if causes := chain.Causes(); len(causes) > 0 {
		fmt.Fprintf(&b, " Known causes: %s.", strings.Join(causes, ", "))
	}
	if remedies := chain.Remedies(); len(remedies) > 0 {
		fmt.Fprintf(&b, " Recommended remedies: %s.", strings.Join(remedies, ", "))
	}
	if chain.Empty() {
		b.WriteString(" No causal data is on record for this code.")
	}
	return b.String()
}
