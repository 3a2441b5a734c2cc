package route

// Mode is the handling mode a query is classified into.
type Mode string

// Handling mode constants.
const (
	// Lookup resolves a bare fault code against the knowledge graph.
	Lookup Mode = "lookup"
	// Search runs hybrid retrieval over the document corpus.
	Search Mode = "search"
	// Diagnosis runs the full expert diagnosis path.
	Diagnosis Mode = "diagnosis"
	// SafetyAnalysis is diagnosis with a safety-focused prompt.
	SafetyAnalysis Mode = "safety_analysis"
	// MaintenanceAnalysis is diagnosis with a maintenance-focused prompt.
	MaintenanceAnalysis Mode = "maintenance_analysis"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	switch m {
	case Lookup, Search, Diagnosis, SafetyAnalysis, MaintenanceAnalysis:
		return true
	}
	return false
}
