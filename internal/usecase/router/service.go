package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/domain/query"
	"github.com/kinetic-field/faultline/internal/domain/route"
)

// DefaultFallbackTimeout bounds the single classification model call.
const DefaultFallbackTimeout = 5 * time.Second

// Query classification patterns.
var (
	// faultCodeRe matches fault-code-shaped tokens: F505, E-42, ERR_001.
	// Matched against the uppercased text so lowercase codes like f505
	// still resolve without a model call.
	faultCodeRe = regexp.MustCompile(`\b[A-Z]{1,3}[-_]?\d{2,4}\b`)

	actionRe = regexp.MustCompile(`(?i)\b(diagnose|troubleshoot|debug|fix|repair|why|failing|fault(ed)?|error|alarm|stuck|won'?t|doesn'?t|isn'?t|not working)\b`)

	safetyRe = regexp.MustCompile(`(?i)\b(safety|hazard|risk|danger(ous)?|emergency|critical|lock\s*out|tag\s*out|injur)\b`)

	maintenanceRe = regexp.MustCompile(`(?i)\b(maintenance|schedule|inspection|preventive|service interval|lubricat|overhaul)\b`)

	manufacturerRe = regexp.MustCompile(`(?i)\b(kone|otis|schindler|thyssenkrupp|tk elevator|mitsubishi|fujitec|hyundai|hitachi|sigma)\b`)
)

// Service classifies incoming queries into a handling mode. Classification
// is two-stage: deterministic patterns resolve the common case without any
// external call; only an ambiguous query triggers one bounded model call,
// and any failure of that call degrades to route.Search rather than
// stalling the pipeline. Stateless; safe for concurrent use.
type Service struct {
	generator       Generator
	fallbackTimeout time.Duration
	logger          *zap.Logger
}

// New creates a router. generator may be nil, disabling the model fallback.
func New(generator Generator, fallbackTimeout time.Duration, logger *zap.Logger) *Service {
	if fallbackTimeout <= 0 {
		fallbackTimeout = DefaultFallbackTimeout
	}
	return &Service{generator: generator, fallbackTimeout: fallbackTimeout, logger: logger}
}

// Classify determines the handling mode for a query. Never returns an
// error: router failures degrade to the safe default, route.Search.
func (s *Service) Classify(ctx context.Context, q *query.Query) route.Mode {
	if m, ok := classifyByPattern(q.Text()); ok {
		return m
	}
	return s.classifyByModel(ctx, q.Text())
}

// ExtractFaultCode returns the first fault-code-shaped token in the text
// in uppercase form, or "" when none is present.
func ExtractFaultCode(text string) string {
	return faultCodeRe.FindString(strings.ToUpper(text))
}

// classifyByPattern resolves the common case deterministically.
// Returns ok=false only when the text is too ambiguous to call.
func classifyByPattern(text string) (route.Mode, bool) {
	hasCode := faultCodeRe.MatchString(strings.ToUpper(text))
	hasAction := actionRe.MatchString(text)

	switch {
	case hasCode && hasAction:
		return route.Diagnosis, true
	case hasCode:
		if bareFaultLookup(text) {
			return route.Lookup, true
		}
		// A fault code surrounded by symptom prose is a diagnosis request.
		return route.Diagnosis, true
	case safetyRe.MatchString(text):
		return route.SafetyAnalysis, true
	case maintenanceRe.MatchString(text):
		return route.MaintenanceAnalysis, true
	case hasAction:
		return route.Diagnosis, true
	}

	// Multi-word free text with no domain signal is a confident search;
	// short cryptic tokens go to the model.
	if len(strings.Fields(text)) >= 3 {
		return route.Search, true
	}
	return "", false
}

// bareFaultLookup reports whether text is a fault code alone, optionally
// accompanied by manufacturer keywords.
func bareFaultLookup(text string) bool {
	rest := faultCodeRe.ReplaceAllString(strings.ToUpper(text), " ")
	rest = manufacturerRe.ReplaceAllString(rest, " ")
	return strings.TrimSpace(rest) == ""
}

const classifyPrompt = `Classify this elevator/escalator technical query into exactly one category.

Query: %q

Categories:
- lookup: a bare fault code to resolve
- search: general information lookup
- diagnosis: troubleshooting a fault or symptom
- safety_analysis: safety-focused question
- maintenance_analysis: maintenance schedules or procedures

Respond with just the category name.`

// classifyByModel issues the single fallback call. No retries: a failed or
// timed-out call returns the safe default.
func (s *Service) classifyByModel(ctx context.Context, text string) route.Mode {
	if s.generator == nil {
		return route.Search
	}

	callCtx, cancel := context.WithTimeout(ctx, s.fallbackTimeout)
	defer cancel()

	res, err := s.generator.Generate(callCtx, domain.GenerateRequest{
		Prompt: fmt.Sprintf(classifyPrompt, text),
	})
	if err != nil {
		s.logger.Warn("Classification fallback failed, defaulting to search", zap.Error(err))
		return route.Search
	}

	m := route.Mode(strings.ToLower(strings.TrimSpace(res.Text)))
	if !m.IsValid() {
		s.logger.Warn("Classification fallback returned unknown label",
			zap.String("label", res.Text))
		return route.Search
	}
	return m
}
