package consensus

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
)

const diagnosisSystem = "You are an expert elevator and escalator technician. " +
	"Diagnose faults accurately and answer only with the requested JSON object."

// buildDiagnosisPrompt renders one expert pass prompt. All passes for a
// synthesis share the same prompt; only sampling differs.
func buildDiagnosisPrompt(fc *FaultContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Diagnose fault code: %s\n", fc.FaultCode)
	if fc.Manufacturer != "" {
		fmt.Fprintf(&b, "Manufacturer: %s\n", fc.Manufacturer)
	}
	if fc.Equipment != "" {
		fmt.Fprintf(&b, "Equipment: %s\n", fc.Equipment)
	}
	if len(fc.Symptoms) > 0 {
		fmt.Fprintf(&b, "Reported symptoms: %s\n", strings.Join(fc.Symptoms, "; "))
	}
	if fc.GraphContext != "" {
		fmt.Fprintf(&b, "\nKnowledge graph evidence:\n%s\n", fc.GraphContext)
	}

	b.WriteString(`
Respond with a JSON object:
{
  "description": "what this fault means",
  "severity": "critical|high|medium|low|info",
  "causes": ["most likely causes, ranked"],
  "root_cause": "single most likely cause",
  "remedies": ["step-by-step remedies"],
  "related_components": ["components to inspect"],
  "safety_implications": ["safety notes"],
  "parts_needed": ["likely replacement parts"],
  "estimated_time": "repair time estimate",
  "confidence": 0.0
}
`)

	switch diagnosis.Mode(fc.Mode) {
	case diagnosis.Quick:
		b.WriteString("\nQuick mode: focus on the single most likely cause and primary remedy.\n")
	case diagnosis.Safety:
		b.WriteString("\nSafety focus: emphasize immediate risks, required precautions, and lockout/tagout requirements.\n")
	case diagnosis.Maintenance:
		b.WriteString("\nMaintenance focus: emphasize inspection intervals, wear items, and preventive steps.\n")
	}

	return b.String()
}

// diagnosisPayload mirrors the JSON the generator is asked for.
type diagnosisPayload struct {
	Description        string   `json:"description"`
	Severity           string   `json:"severity"`
	Causes             []string `json:"causes"`
	RootCause          string   `json:"root_cause"`
	Remedies           []string `json:"remedies"`
	RelatedComponents  []string `json:"related_components"`
	SafetyImplications []string `json:"safety_implications"`
	PartsNeeded        []string `json:"parts_needed"`
	EstimatedTime      string   `json:"estimated_time"`
	Confidence         float64  `json:"confidence"`
}

// parseDiagnosis decodes a generator response into a FaultDiagnosis.
// The decoder tolerates fenced code blocks and unknown fields; it rejects
// responses without at least one cause.
func parseDiagnosis(faultCode, text string) (diagnosis.FaultDiagnosis, error) {
	raw := stripFences(text)

	var p diagnosisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return diagnosis.FaultDiagnosis{}, fmt.Errorf("%w: decode diagnosis: %w", domain.ErrGeneratorError, err)
	}
	if len(p.Causes) == 0 {
		return diagnosis.FaultDiagnosis{}, fmt.Errorf("%w: diagnosis names no causes", domain.ErrGeneratorError)
	}

	sev := diagnosis.Severity(strings.ToLower(p.Severity))
	if !sev.IsValid() {
		sev = diagnosis.Medium
	}
	conf := p.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return diagnosis.FaultDiagnosis{
		FaultCode:          faultCode,
		Description:        p.Description,
		Severity:           sev,
		Causes:             p.Causes,
		RootCause:          p.RootCause,
		Remedies:           p.Remedies,
		RelatedComponents:  p.RelatedComponents,
		SafetyImplications: p.SafetyImplications,
		PartsNeeded:        p.PartsNeeded,
		EstimatedTime:      p.EstimatedTime,
		Confidence:         conf,
	}, nil
}

// stripFences removes a surrounding ```json ... ``` fence if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
