package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/crimson-sun/winnow/internal/model"
)

func TestRulesSeverityDefaults(t *testing.T) {
	prop, err := NewRules().Propose(context.Background(), Analysis{})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if prop.GlobalRate != 1.0 {
		t.Fatalf("expected global rate 1.0, got %v", prop.GlobalRate)
	}
	want := model.SeverityRates{
		model.SeverityDebug:    0.05,
		model.SeverityInfo:     0.2,
		model.SeverityWarning:  0.5,
		model.SeverityError:    1.0,
		model.SeverityCritical: 1.0,
	}
	for sev, rate := range want {
		if got := prop.SeverityRates[sev]; got != rate {
			t.Fatalf("expected %s rate %v, got %v", sev, rate, got)
		}
	}
	if prop.AnomalyBoost != 3.0 {
		t.Fatalf("expected anomaly boost 3.0, got %v", prop.AnomalyBoost)
	}
	if len(prop.PatternRates) != 0 {
		t.Fatalf("expected no pattern rates on an empty window, got %v", prop.PatternRates)
	}
}

func TestRulesDownsamplesNoisyClusters(t *testing.T) {
	histogram := func(sev model.Severity, n uint64) map[model.Severity]uint64 {
		return map[model.Severity]uint64{sev: n}
	}
	a := Analysis{
		Patterns: []model.PatternStats{
			infoStats("aaa", 300), infoStats("bbb", 100), infoStats("ccc", 150),
			errorStats("ddd", 400), infoStats("eee", 50),
		},
		Clusters: []model.Cluster{
			{Representative: "aaa", Members: []string{"aaa", "bbb"}, TotalCount: 400, SeverityHistogram: histogram(model.SeverityInfo, 400)},
			{Representative: "ccc", Members: []string{"ccc"}, TotalCount: 150, SeverityHistogram: histogram(model.SeverityInfo, 150)},
			{Representative: "ddd", Members: []string{"ddd"}, TotalCount: 400, SeverityHistogram: histogram(model.SeverityError, 400)},
			{Representative: "eee", Members: []string{"eee"}, TotalCount: 50, SeverityHistogram: histogram(model.SeverityInfo, 50)},
		},
	}

	prop, err := NewRules().Propose(context.Background(), a)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	// 40% of volume: every cluster member drops to the dominant rate.
	for _, sig := range []string{"aaa", "bbb"} {
		if got := prop.PatternRates[sig]; got != 0.05 {
			t.Fatalf("expected %s downsampled to 0.05, got %v", sig, got)
		}
	}
	// 15% of volume: heavy but not dominant.
	if got := prop.PatternRates["ccc"]; got != 0.1 {
		t.Fatalf("expected ccc downsampled to 0.1, got %v", got)
	}
	// Same volume as aaa+bbb, but it carries errors.
	if _, ok := prop.PatternRates["ddd"]; ok {
		t.Fatal("error-bearing cluster must not be downsampled")
	}
	// 5% of volume: too small to bother.
	if _, ok := prop.PatternRates["eee"]; ok {
		t.Fatal("small cluster must not be downsampled")
	}
	if !strings.Contains(prop.Reasoning, "downsampled") {
		t.Fatalf("expected reasoning to mention downsampling, got %q", prop.Reasoning)
	}
}

func TestRulesSingletonFallbackWithoutClusters(t *testing.T) {
	a := Analysis{Patterns: []model.PatternStats{infoStats("aaa", 90), errorStats("bbb", 10)}}
	prop, err := NewRules().Propose(context.Background(), a)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if got := prop.PatternRates["aaa"]; got != 0.05 {
		t.Fatalf("expected aaa treated as its own dominant cluster at 0.05, got %v", got)
	}
	if _, ok := prop.PatternRates["bbb"]; ok {
		t.Fatal("error pattern must keep its severity rate")
	}
}

func TestRulesShareBoundaries(t *testing.T) {
	// Exactly 30% is not dominant and exactly 10% is not heavy.
	a := Analysis{Patterns: []model.PatternStats{
		infoStats("aaa", 30), infoStats("bbb", 10), infoStats("ccc", 60),
	}}
	prop, err := NewRules().Propose(context.Background(), a)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if got := prop.PatternRates["aaa"]; got != 0.1 {
		t.Fatalf("expected aaa at the heavy rate 0.1, got %v", got)
	}
	if _, ok := prop.PatternRates["bbb"]; ok {
		t.Fatal("a 10% share must not be downsampled")
	}
	if got := prop.PatternRates["ccc"]; got != 0.05 {
		t.Fatalf("expected ccc at the dominant rate 0.05, got %v", got)
	}
}
