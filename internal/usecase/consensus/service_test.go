package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
)

func TestSynthesizeMajority(t *testing.T) {
	gen := &mockGenerator{responses: []mockResponse{
		{text: diagnosisJSON("sensor misalignment", []string{"sensor misalignment"}, []string{"realign sensor"}, 0.9)},
		{text: diagnosisJSON("sensor misalignment", []string{"sensor misalignment"}, []string{"realign sensor"}, 0.8)},
		{text: diagnosisJSON("wiring fault", []string{"wiring fault"}, []string{"inspect harness"}, 0.7)},
	}}
	gate := &mockGate{}
	svc := New(gen, gate, 3, time.Second, zap.NewNop())

	res, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-401"}, 0)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.Diagnosis.RootCause != "sensor misalignment" {
		t.Errorf("root cause = %q, want sensor misalignment", res.Diagnosis.RootCause)
	}
	if want := 2.0 / 3.0; res.ConsensusLevel < want-1e-9 || res.ConsensusLevel > want+1e-9 {
		t.Errorf("consensus level = %v, want %v", res.ConsensusLevel, want)
	}
	if len(res.Opinions) != 3 {
		t.Errorf("opinions = %d, want 3", len(res.Opinions))
	}
	if len(res.Disagreements) != 1 || res.Disagreements[0].Cause != "wiring fault" {
		t.Errorf("disagreements = %v, want one over wiring fault", res.Disagreements)
	}
	if gate.acquires != 3 || gate.releases != 3 {
		t.Errorf("gate acquires=%d releases=%d, want 3/3", gate.acquires, gate.releases)
	}
}

func TestSynthesizeExcludesFailedPass(t *testing.T) {
	gen := &mockGenerator{responses: []mockResponse{
		{text: diagnosisJSON("brake wear", []string{"brake wear"}, []string{"replace pads"}, 0.8)},
		{err: domain.ErrCollaboratorUnavailable},
		{text: diagnosisJSON("brake wear", []string{"brake wear"}, []string{"replace pads"}, 0.9)},
	}}
	svc := New(gen, &mockGate{}, 3, time.Second, zap.NewNop())

	res, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-12"}, 0)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(res.Opinions) != 2 {
		t.Fatalf("opinions = %d, want 2", len(res.Opinions))
	}
	if res.ConsensusLevel != 1.0 {
		t.Errorf("consensus level = %v, want 1.0 among surviving opinions", res.ConsensusLevel)
	}
}

func TestSynthesizeExcludesMalformedResponse(t *testing.T) {
	gen := &mockGenerator{responses: []mockResponse{
		{text: diagnosisJSON("brake wear", []string{"brake wear"}, nil, 0.8)},
		{text: "not json at all"},
		{text: `{"causes":[]}`},
	}}
	svc := New(gen, &mockGate{}, 3, time.Second, zap.NewNop())

	res, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-12"}, 0)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(res.Opinions) != 1 {
		t.Errorf("opinions = %d, want 1", len(res.Opinions))
	}
}

func TestSynthesizeAllFail(t *testing.T) {
	gen := &mockGenerator{responses: []mockResponse{
		{err: domain.ErrCollaboratorUnavailable},
		{err: domain.ErrCollaboratorUnavailable},
		{err: domain.ErrCollaboratorUnavailable},
	}}
	svc := New(gen, &mockGate{}, 3, time.Second, zap.NewNop())

	_, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-99"}, 0)
	if !errors.Is(err, domain.ErrAllExpertsFailed) {
		t.Fatalf("err = %v, want ErrAllExpertsFailed", err)
	}

	var ef *domain.ExpertFailureError
	if !errors.As(err, &ef) {
		t.Fatalf("err = %T, want *domain.ExpertFailureError", err)
	}
	if ef.Attempted != 3 {
		t.Errorf("attempted = %d, want 3", ef.Attempted)
	}
}

func TestSynthesizeGateRejected(t *testing.T) {
	gen := &mockGenerator{}
	gate := &mockGate{err: domain.ErrRateLimited}
	svc := New(gen, gate, 2, time.Second, zap.NewNop())

	_, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-7"}, 0)
	if !errors.Is(err, domain.ErrAllExpertsFailed) {
		t.Fatalf("err = %v, want ErrAllExpertsFailed", err)
	}
	if gen.callCount() != 0 {
		t.Errorf("generator called %d times despite gate rejection", gen.callCount())
	}
}

func TestSynthesizeExplicitExpertCount(t *testing.T) {
	gen := &mockGenerator{responses: []mockResponse{
		{text: diagnosisJSON("brake wear", []string{"brake wear"}, nil, 0.8)},
		{text: diagnosisJSON("brake wear", []string{"brake wear"}, nil, 0.9)},
	}}
	svc := New(gen, &mockGate{}, 5, time.Second, zap.NewNop())

	res, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-3"}, 2)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gen.callCount() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.callCount())
	}
	if len(res.Opinions) != 2 {
		t.Errorf("opinions = %d, want 2", len(res.Opinions))
	}
}

func TestNewDefaults(t *testing.T) {
	svc := New(&mockGenerator{}, &mockGate{}, 0, 0, zap.NewNop())
	if svc.experts != DefaultExperts {
		t.Errorf("experts = %d, want %d", svc.experts, DefaultExperts)
	}
	if svc.passTimeout != DefaultPassTimeout {
		t.Errorf("passTimeout = %v, want %v", svc.passTimeout, DefaultPassTimeout)
	}
}

func TestSynthesizePunctuationOnlyCauses(t *testing.T) {
	gen := &mockGenerator{responses: []mockResponse{
		{text: diagnosisJSON("!!!", []string{"!!!"}, nil, 0.9)},
	}}
	svc := New(gen, &mockGate{}, 1, time.Second, zap.NewNop())

	_, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-401"}, 1)
	if !errors.Is(err, domain.ErrGeneratorError) {
		t.Fatalf("expected ErrGeneratorError, got %v", err)
	}
}

func TestSynthesizeNonLatinResponse(t *testing.T) {
	gen := &mockGenerator{responses: []mockResponse{
		{text: diagnosisJSON("传感器错位", []string{"传感器错位"}, []string{"重新校准传感器"}, 0.9)},
	}}
	svc := New(gen, &mockGate{}, 1, time.Second, zap.NewNop())

	res, err := svc.Synthesize(context.Background(), &FaultContext{FaultCode: "E-401"}, 1)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Diagnosis.RootCause != "传感器错位" {
		t.Errorf("root cause = %q, want 传感器错位", res.Diagnosis.RootCause)
	}
}
