package router

import (
	"context"

	"github.com/kinetic-field/faultline/internal/domain"
)

// Generator issues the single bounded classification call for ambiguous
// queries. Optional: a nil generator degrades to the safe default mode.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error)
}
