package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/diagnosis"
	"github.com/kinetic-field/faultline/internal/metrics"
)

const (
	DefaultExperts     = 3
	DefaultPassTimeout = 45 * time.Second

	// baseTemperature spreads sampling across passes so experts do not
	// collapse into identical answers.
	baseTemperature = 0.2
	temperatureStep = 0.25
)

// Service runs independent expert diagnosis passes and reconciles them.
type Service struct {
	generator   Generator
	gate        Gate
	experts     int
	passTimeout time.Duration
	logger      *zap.Logger
}

func New(generator Generator, gate Gate, experts int, passTimeout time.Duration, logger *zap.Logger) *Service {
	if experts <= 0 {
		experts = DefaultExperts
	}
	if passTimeout <= 0 {
		passTimeout = DefaultPassTimeout
	}
	return &Service{
		generator:   generator,
		gate:        gate,
		experts:     experts,
		passTimeout: passTimeout,
		logger:      logger,
	}
}

// Synthesize fans out expertCount passes for the fault context and merges
// the successful ones into a consensus diagnosis. A non-positive
// expertCount uses the configured default. Failed passes are excluded
// rather than aborting the synthesis; only when every pass fails does the
// call return an error.
func (s *Service) Synthesize(ctx context.Context, fc *FaultContext, expertCount int) (diagnosis.ConsensusResult, error) {
	if expertCount <= 0 {
		expertCount = s.experts
	}
	prompt := buildDiagnosisPrompt(fc)

	opinions := make([]diagnosis.ExpertOpinion, expertCount)
	succeeded := make([]bool, expertCount)

	var wg sync.WaitGroup
	for i := 0; i < expertCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			op, err := s.runPass(ctx, idx, prompt, fc.FaultCode)
			if err != nil {
				s.logger.Warn("expert pass failed",
					zap.Int("pass", idx),
					zap.String("fault_code", fc.FaultCode),
					zap.Error(err))
				return
			}
			opinions[idx] = op
			succeeded[idx] = true
		}(i)
	}
	wg.Wait()

	var kept []diagnosis.ExpertOpinion
	for i := range opinions {
		if succeeded[i] {
			kept = append(kept, opinions[i])
		}
	}
	if len(kept) == 0 {
		return diagnosis.ConsensusResult{}, domain.NewExpertFailure(expertCount)
	}

	result, err := merge(kept)
	if err != nil {
		return diagnosis.ConsensusResult{}, err
	}
	s.logger.Info("consensus synthesized",
		zap.String("fault_code", fc.FaultCode),
		zap.Int("opinions", len(kept)),
		zap.Int("failed", expertCount-len(kept)),
		zap.Float64("consensus_level", result.ConsensusLevel))
	return result, nil
}

// runPass performs one gated, bounded generator round trip.
func (s *Service) runPass(ctx context.Context, idx int, prompt, faultCode string) (diagnosis.ExpertOpinion, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		metrics.ExpertPassesTotal.WithLabelValues("gate_timeout").Inc()
		return diagnosis.ExpertOpinion{}, fmt.Errorf("acquire gate: %w", err)
	}
	defer s.gate.Release()

	passCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	res, err := s.generator.Generate(passCtx, domain.GenerateRequest{
		Prompt:      prompt,
		System:      diagnosisSystem,
		JSONMode:    true,
		Temperature: baseTemperature + temperatureStep*float32(idx),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrCollaboratorTimeout) {
			metrics.ExpertPassesTotal.WithLabelValues("timeout").Inc()
		} else {
			metrics.ExpertPassesTotal.WithLabelValues("error").Inc()
		}
		return diagnosis.ExpertOpinion{}, fmt.Errorf("generate diagnosis: %w", err)
	}

	diag, err := parseDiagnosis(faultCode, res.Text)
	if err != nil {
		metrics.ExpertPassesTotal.WithLabelValues("error").Inc()
		return diagnosis.ExpertOpinion{}, err
	}

	metrics.ExpertPassesTotal.WithLabelValues("success").Inc()
	return diagnosis.ExpertOpinion{
		Expert:     fmt.Sprintf("expert-%d", idx+1),
		Diagnosis:  diag,
		Confidence: diag.Confidence,
	}, nil
}
