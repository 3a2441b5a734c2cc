package router

import (
	"context"

	"github.com/kinetic-field/faultline/internal/domain"
)

// mockGenerator implements Generator for tests.
type mockGenerator struct {
	generateFn func(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error)
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, req)
	}
	return domain.GenerateResult{Text: "search"}, nil
}
