package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/query"
	"github.com/kinetic-field/faultline/internal/domain/route"
)

func mustQuery(t *testing.T, text string) *query.Query {
	t.Helper()
	q, err := query.New(text, "", "", nil, false)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return &q
}

func TestClassify_PatternsResolveWithoutFallback(t *testing.T) {
	tests := []struct {
		text string
		want route.Mode
	}{
		{"F505", route.Lookup},
		{"f505", route.Lookup},
		{"KONE F505", route.Lookup},
		{"kone f505", route.Lookup},
		{"diagnose F505 door won't close", route.Diagnosis},
		{"how does the door operator mechanism work", route.Search},
		{"E-42 car stops between floors", route.Diagnosis},
		{"lockout tagout procedure for machine room", route.SafetyAnalysis},
		{"preventive maintenance schedule for traction sheave", route.MaintenanceAnalysis},
		{"escalator handrail keeps stopping, troubleshoot", route.Diagnosis},
	}

	mg := &mockGenerator{}
	s := New(mg, time.Second, zap.NewNop())

	for _, tt := range tests {
		got := s.Classify(context.Background(), mustQuery(t, tt.text))
		if got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
	if mg.calls != 0 {
		t.Errorf("pattern stage must resolve all cases; fallback called %d times", mg.calls)
	}
}

func TestClassify_AmbiguousUsesFallback(t *testing.T) {
	mg := &mockGenerator{
		generateFn: func(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
			return domain.GenerateResult{Text: "lookup"}, nil
		},
	}
	s := New(mg, time.Second, zap.NewNop())

	got := s.Classify(context.Background(), mustQuery(t, "sheave"))
	if got != route.Lookup {
		t.Fatalf("expected fallback label to win, got %s", got)
	}
	if mg.calls != 1 {
		t.Fatalf("expected exactly one fallback call, got %d", mg.calls)
	}
}

func TestClassify_FallbackFailureDefaultsToSearch(t *testing.T) {
	mg := &mockGenerator{
		generateFn: func(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
			return domain.GenerateResult{}, errors.New("provider down")
		},
	}
	s := New(mg, time.Second, zap.NewNop())

	if got := s.Classify(context.Background(), mustQuery(t, "sheave")); got != route.Search {
		t.Fatalf("failed fallback must default to search, got %s", got)
	}
	if mg.calls != 1 {
		t.Fatalf("fallback must not be retried, got %d calls", mg.calls)
	}
}

func TestClassify_FallbackUnknownLabelDefaultsToSearch(t *testing.T) {
	mg := &mockGenerator{
		generateFn: func(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
			return domain.GenerateResult{Text: "sandwich"}, nil
		},
	}
	s := New(mg, time.Second, zap.NewNop())

	if got := s.Classify(context.Background(), mustQuery(t, "sheave")); got != route.Search {
		t.Fatalf("unknown label must default to search, got %s", got)
	}
}

func TestClassify_NilGeneratorDefaultsToSearch(t *testing.T) {
	s := New(nil, time.Second, zap.NewNop())
	if got := s.Classify(context.Background(), mustQuery(t, "sheave")); got != route.Search {
		t.Fatalf("nil generator must default to search, got %s", got)
	}
}

func TestClassify_FallbackTimeoutBounded(t *testing.T) {
	mg := &mockGenerator{
		generateFn: func(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
			<-ctx.Done()
			return domain.GenerateResult{}, ctx.Err()
		},
	}
	s := New(mg, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	got := s.Classify(context.Background(), mustQuery(t, "sheave"))
	if got != route.Search {
		t.Fatalf("timed-out fallback must default to search, got %s", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fallback not bounded: %s", elapsed)
	}
}

func TestExtractFaultCode(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"diagnose F505 now", "F505"},
		{"what does f505 mean", "F505"},
		{"E-42 intermittent", "E-42"},
		{"err_001 on startup", "ERR_001"},
		{"no code here", ""},
	}
	for _, tt := range tests {
		if got := ExtractFaultCode(tt.text); got != tt.want {
			t.Errorf("ExtractFaultCode(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
