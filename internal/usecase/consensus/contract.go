package consensus

import (
	"context"

	"github.com/kinetic-field/faultline/internal/domain"
)

// Generator runs one expert diagnosis round trip.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error)
}

// Gate is the shared admission gate toward the reasoning provider.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// FaultContext carries everything one expert pass needs.
type FaultContext struct {
	FaultCode    string
	Manufacturer string
	Equipment    string
	Symptoms     []string
	// GraphContext is the rendered causal chain, "" when the graph had
	// nothing for this fault.
	GraphContext string
	Mode         string // diagnosis.Mode value; "" means detailed
}
