package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/crimson-sun/winnow/internal/model"
)

// Rate table the rule-based strategy starts from.
const (
	ruleDebugRate    = 0.05
	ruleInfoRate     = 0.2
	ruleWarningRate  = 0.5
	ruleAnomalyBoost = 3.0

	// Noisy-cluster downsampling: share of window volume above which a
	// DEBUG/INFO-only cluster gets an explicit low rate.
	dominantShare = 0.30
	dominantRate  = 0.05
	heavyShare    = 0.10
	heavyRate     = 0.1
)

func init() {
	Register("rules", func(Settings) (Strategy, error) {
		return NewRules(), nil
	})
}

// Rules is the deterministic default strategy and the mandatory fallback
// when any other strategy fails. It proposes conservative severity rates and
// downsamples DEBUG/INFO clusters that dominate the window.
type Rules struct{}

// NewRules creates the rule-based strategy.
func NewRules() *Rules { return &Rules{} }

func (*Rules) Name() string { return "rules" }

func (*Rules) Propose(_ context.Context, a Analysis) (Proposal, error) {
	prop := Proposal{
		GlobalRate: 1.0,
		SeverityRates: model.SeverityRates{
			model.SeverityDebug:    ruleDebugRate,
			model.SeverityInfo:     ruleInfoRate,
			model.SeverityWarning:  ruleWarningRate,
			model.SeverityError:    1.0,
			model.SeverityCritical: 1.0,
		},
		AnomalyBoost: ruleAnomalyBoost,
	}

	reasons := []string{
		fmt.Sprintf("severity defaults (DEBUG %.2f, INFO %.1f, WARNING %.1f)",
			ruleDebugRate, ruleInfoRate, ruleWarningRate),
	}

	total := a.TotalCount()
	for _, c := range clustersOf(a) {
		if total == 0 || !c.Noisy() {
			continue
		}
		share := float64(c.TotalCount) / float64(total)
		var rate float64
		switch {
		case share > dominantShare:
			rate = dominantRate
		case share > heavyShare:
			rate = heavyRate
		default:
			continue
		}
		if prop.PatternRates == nil {
			prop.PatternRates = make(map[string]float64)
		}
		for _, sig := range c.Members {
			prop.PatternRates[sig] = rate
		}
		reasons = append(reasons, fmt.Sprintf(
			"downsampled noisy cluster %s (%.0f%% of volume) to %.2f",
			clip(c.Representative, 8), share*100, rate))
	}

	prop.Reasoning = strings.Join(reasons, "; ")
	return prop, nil
}

// clustersOf returns the analysis clusters, or one singleton cluster per
// pattern when the caller did not cluster. Keeps the strategy usable on a
// bare tracker snapshot.
func clustersOf(a Analysis) []model.Cluster {
	if len(a.Clusters) > 0 {
		return a.Clusters
	}
	out := make([]model.Cluster, 0, len(a.Patterns))
	for _, p := range a.Patterns {
		out = append(out, model.Cluster{
			Representative:    p.Signature,
			Members:           []string{p.Signature},
			SampleMessage:     p.SampleMessage,
			TotalCount:        p.Count,
			SeverityHistogram: p.SeverityHistogram,
		})
	}
	return out
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
