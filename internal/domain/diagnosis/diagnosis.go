package diagnosis

// Severity grades how serious a diagnosed fault is.
type Severity string

// Severity constants, most serious first.
const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
	Info     Severity = "info"
)

// IsValid checks if the severity is a known grade.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low, Info:
		return true
	}
	return false
}

// Mode selects the prompt focus of a diagnosis pass.
type Mode string

// Diagnosis mode constants.
const (
	Quick       Mode = "quick"
	Detailed    Mode = "detailed"
	Safety      Mode = "safety"
	Maintenance Mode = "maintenance"
)

// IsValid checks if the mode is supported.
func (m Mode) IsValid() bool {
	switch m {
	case Quick, Detailed, Safety, Maintenance:
		return true
	}
	return false
}

// FaultDiagnosis is one synthesized diagnosis for a fault code.
type FaultDiagnosis struct {
	FaultCode          string   `json:"fault_code"`
	Description        string   `json:"description"`
	Severity           Severity `json:"severity"`
	Causes             []string `json:"causes"`
	RootCause          string   `json:"root_cause,omitempty"`
	Remedies           []string `json:"remedies"`
	RelatedComponents  []string `json:"related_components,omitempty"`
	SafetyImplications []string `json:"safety_implications,omitempty"`
	PartsNeeded        []string `json:"parts_needed,omitempty"`
	EstimatedTime      string   `json:"estimated_time,omitempty"`
	Confidence         float64  `json:"confidence"`
}

// ExpertOpinion is one diagnosis pass attributed to one expert.
type ExpertOpinion struct {
	Expert     string         `json:"expert"`
	Diagnosis  FaultDiagnosis `json:"diagnosis"`
	Confidence float64        `json:"confidence"`
}

// Disagreement records a cause named by fewer opinions than the dominant one.
type Disagreement struct {
	Cause      string   `json:"cause"`
	Supporters []string `json:"supporters"`
}

// ConsensusResult is the merged outcome of multiple expert passes.
// ConsensusLevel is in [0,1] and reaches 1.0 only when every successful
// opinion names the same dominant cause.
type ConsensusResult struct {
	Diagnosis      FaultDiagnosis  `json:"diagnosis"`
	Opinions       []ExpertOpinion `json:"opinions"`
	ConsensusLevel float64         `json:"consensus_level"`
	Disagreements  []Disagreement  `json:"disagreements,omitempty"`
}
