package policy

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/winnow/internal/model"
)

// Signatures flagged at or above this confidence get recorded on the policy
// so samplers boost them until the next version lands.
const anomalyConfidenceFloor = 0.7

// GeneratorOption adjusts a Generator.
type GeneratorOption func(*Generator)

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// Generator turns strategy proposals into versioned, validated policies.
// Generate never fails: a strategy error falls back to the rule-based
// strategy, which cannot error.
type Generator struct {
	strategy Strategy
	fallback Strategy
	now      func() time.Time
}

// NewGenerator creates a generator driving the given strategy. A nil
// strategy means rules-only.
func NewGenerator(strategy Strategy, opts ...GeneratorOption) *Generator {
	g := &Generator{
		strategy: strategy,
		fallback: NewRules(),
		now:      time.Now,
	}
	if g.strategy == nil {
		g.strategy = g.fallback
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the next policy version for the analyzed window. The
// proposal is clamped, stamped, and annotated with anomalous signatures;
// previous nil starts the version chain at 1.
func (g *Generator) Generate(ctx context.Context, a Analysis, previous *model.SamplingPolicy) model.SamplingPolicy {
	prop, err := g.strategy.Propose(ctx, a)
	generatedBy := g.strategy.Name()
	if err != nil {
		slog.Warn("policy strategy failed, using rules fallback",
			"service", a.Service, "strategy", generatedBy, "error", err)
		prop, _ = g.fallback.Propose(ctx, a)
		prop.Reasoning = "fallback: strategy error: " + err.Error()
		generatedBy = g.fallback.Name()
	}

	pol := model.SamplingPolicy{
		ID:            uuid.NewString(),
		Version:       1,
		GlobalRate:    prop.GlobalRate,
		SeverityRates: prop.SeverityRates,
		PatternRates:  prop.PatternRates,
		AnomalyBoost:  prop.AnomalyBoost,
		Reasoning:     prop.Reasoning,
		GeneratedBy:   generatedBy,
		GeneratedAt:   g.now().UTC(),
	}
	if previous != nil {
		pol.Version = previous.Version + 1
	}

	pol = pol.Clamp()
	boostAnomalous(&pol, a.Anomalies)
	return pol
}

// boostAnomalous records confidently anomalous signatures on the policy and
// raises any explicit pattern rate they hold. Signatures without an explicit
// rate are boosted at decision time instead, off the recorded set.
func boostAnomalous(pol *model.SamplingPolicy, anomalies []model.AnomalyEvent) {
	for _, ev := range anomalies {
		if ev.Signature == "" || ev.Confidence < anomalyConfidenceFloor {
			continue
		}
		if pol.Boosted(ev.Signature) {
			continue
		}
		pol.AnomalySignatures = append(pol.AnomalySignatures, ev.Signature)
		if rate, ok := pol.PatternRates[ev.Signature]; ok {
			boosted := rate * pol.AnomalyBoost
			if boosted > 1 {
				boosted = 1
			}
			pol.PatternRates[ev.Signature] = boosted
		}
	}
	sort.Strings(pol.AnomalySignatures)
}
