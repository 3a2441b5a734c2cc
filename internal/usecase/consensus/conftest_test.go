package consensus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kinetic-field/faultline/internal/domain"
)

// mockGenerator returns queued responses in call order. Safe for concurrent
// passes.
type mockGenerator struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     int
}

type mockResponse struct {
	text string
	err  error
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.GenerateResult{}, err
	}

	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.mu.Unlock()

	if idx >= len(m.responses) {
		return domain.GenerateResult{}, domain.ErrGeneratorError
	}
	r := m.responses[idx]
	if r.err != nil {
		return domain.GenerateResult{}, r.err
	}
	return domain.GenerateResult{Text: r.text}, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockGate counts acquisitions and optionally rejects them.
type mockGate struct {
	mu       sync.Mutex
	acquires int
	releases int
	err      error
}

func (m *mockGate) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.acquires++
	return nil
}

func (m *mockGate) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
}

func diagnosisJSON(rootCause string, causes, remedies []string, confidence float64) string {
	payload := map[string]any{
		"description":        "door zone fault",
		"severity":           "high",
		"causes":             causes,
		"root_cause":         rootCause,
		"remedies":           remedies,
		"related_components": []string{"door operator"},
		"estimated_time":     "1h",
		"confidence":         confidence,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(raw)
}
