// Package engine orchestrates the analysis pipeline: cluster the window's
// patterns, detect anomalies against history, and generate the next policy.
package engine

import (
	"context"
	"log/slog"

	"github.com/crimson-sun/winnow/internal/engine/anomaly"
	"github.com/crimson-sun/winnow/internal/engine/policy"
	"github.com/crimson-sun/winnow/internal/model"
)

// Analyzer runs the cluster, detect, generate stages for one service window
// at a time. It keeps no per-service state; callers own windows and history.
type Analyzer struct {
	detector  *anomaly.Detector
	generator *policy.Generator
}

// NewAnalyzer creates an Analyzer from its two stages.
func NewAnalyzer(det *anomaly.Detector, gen *policy.Generator) *Analyzer {
	return &Analyzer{detector: det, generator: gen}
}

// Result is one analysis round's outcome.
type Result struct {
	Policy    model.SamplingPolicy
	Clusters  []model.Cluster
	Anomalies []model.AnomalyEvent
}

// Analyze produces the next policy for a service from its current window,
// the window history, and the previously issued policy (nil on the first
// round). It never fails; the generator guarantees a usable policy.
func (a *Analyzer) Analyze(ctx context.Context, service string, current anomaly.Window, history []anomaly.Window, previous *model.SamplingPolicy) Result {
	clusters := Clusterize(current.Stats)
	anomalies := a.detector.Detect(current, history)

	analysis := policy.Analysis{
		Service:   service,
		Patterns:  current.Stats,
		Clusters:  clusters,
		Anomalies: anomalies,
	}
	pol := a.generator.Generate(ctx, analysis, previous)

	slog.Info("analysis complete",
		"service", service,
		"patterns", len(current.Stats),
		"clusters", len(clusters),
		"anomalies", len(anomalies),
		"policy_version", pol.Version,
	)
	return Result{Policy: pol, Clusters: clusters, Anomalies: anomalies}
}
