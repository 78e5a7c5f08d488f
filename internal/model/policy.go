package model

import (
	"encoding/json"
	"time"
)

// SeverityRates maps severities to keep-probabilities.
type SeverityRates map[Severity]float64

// UnmarshalJSON drops severity names we do not recognize instead of
// misfiling them, so a policy from a newer backend cannot distort the
// rates of the levels we do know.
func (m *SeverityRates) UnmarshalJSON(b []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(SeverityRates, len(raw))
	for name, rate := range raw {
		if sev, ok := ParseSeverity(name); ok {
			out[sev] = rate
		}
	}
	*m = out
	return nil
}

// SamplingPolicy is a versioned, validated ruleset mapping severities and
// patterns to keep-probabilities. Policies are immutable once issued; a new
// version supersedes, never mutates, the old one.
type SamplingPolicy struct {
	ID                string             `json:"id,omitempty"`
	Version           int                `json:"version"`
	GlobalRate        float64            `json:"global_rate"`
	SeverityRates     SeverityRates      `json:"severity_rates"`
	PatternRates      map[string]float64 `json:"pattern_rates,omitempty"`
	AnomalyBoost      float64            `json:"anomaly_boost"`
	AnomalySignatures []string           `json:"anomaly_signatures,omitempty"`
	Reasoning         string             `json:"reasoning,omitempty"`
	GeneratedBy       string             `json:"generated_by,omitempty"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// Clamp returns a copy with every safety invariant enforced: all rates pulled
// into [0,1], ERROR and CRITICAL pinned to exactly 1.0, AnomalyBoost floored
// at 1.0. Every policy that reaches a sampler passes through here, whether it
// was generated locally or decoded off the wire.
func (p SamplingPolicy) Clamp() SamplingPolicy {
	out := p
	out.GlobalRate = clampRate(p.GlobalRate)
	out.SeverityRates = make(SeverityRates, len(p.SeverityRates)+2)
	for sev, r := range p.SeverityRates {
		out.SeverityRates[sev] = clampRate(r)
	}
	out.SeverityRates[SeverityError] = 1.0
	out.SeverityRates[SeverityCritical] = 1.0
	if len(p.PatternRates) > 0 {
		out.PatternRates = make(map[string]float64, len(p.PatternRates))
		for sig, r := range p.PatternRates {
			out.PatternRates[sig] = clampRate(r)
		}
	}
	if out.AnomalyBoost < 1.0 {
		out.AnomalyBoost = 1.0
	}
	return out
}

// Rate resolves the keep-probability for a severity, falling back to
// GlobalRate when the severity has no explicit entry.
func (p SamplingPolicy) Rate(sev Severity) float64 {
	if r, ok := p.SeverityRates[sev]; ok {
		return r
	}
	return p.GlobalRate
}

// PatternRate looks up a pattern-specific override.
func (p SamplingPolicy) PatternRate(signature string) (float64, bool) {
	r, ok := p.PatternRates[signature]
	return r, ok
}

// Boosted reports whether the signature was flagged anomalous when this
// policy was generated. The flag stays active until the next policy swap.
func (p SamplingPolicy) Boosted(signature string) bool {
	for _, s := range p.AnomalySignatures {
		if s == signature {
			return true
		}
	}
	return false
}

// DefaultPolicy is what the backend serves for a service it knows about but
// has not analyzed yet. Version 0 marks it as never-generated.
func DefaultPolicy() SamplingPolicy {
	return SamplingPolicy{
		Version:    0,
		GlobalRate: 1.0,
		SeverityRates: SeverityRates{
			SeverityDebug:    0.1,
			SeverityInfo:     0.3,
			SeverityWarning:  0.7,
			SeverityError:    1.0,
			SeverityCritical: 1.0,
		},
		AnomalyBoost: 2.0,
		Reasoning:    "default policy",
		GeneratedBy:  "default",
	}
}

func clampRate(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
