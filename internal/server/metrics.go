package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/winnow/internal/model"
)

// Metrics exposes winnowd's counters on a private registry so the /metrics
// endpoint never picks up whatever the host process registered globally.
// All record methods are nil-safe; a nil *Metrics disables instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	policiesServed    *prometheus.CounterVec
	policiesGenerated *prometheus.CounterVec
	statsReports      *prometheus.CounterVec
	anomalies         *prometheus.CounterVec
	trackedPatterns   *prometheus.GaugeVec
}

// NewMetrics creates and registers the winnowd metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		policiesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winnow",
			Name:      "policies_served_total",
			Help:      "Policy fetches answered, by service and outcome.",
		}, []string{"service", "outcome"}),
		policiesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winnow",
			Name:      "policies_generated_total",
			Help:      "Policies produced by the analysis scheduler, by strategy.",
		}, []string{"service", "strategy"}),
		statsReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winnow",
			Name:      "stats_reports_total",
			Help:      "Pattern stats reports accepted from samplers.",
		}, []string{"service"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winnow",
			Name:      "anomalies_detected_total",
			Help:      "Anomalies flagged during analysis, by kind.",
		}, []string{"kind"}),
		trackedPatterns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "winnow",
			Name:      "tracked_patterns",
			Help:      "Patterns in each service's current window.",
		}, []string{"service"}),
	}

	m.registry.MustRegister(
		m.policiesServed,
		m.policiesGenerated,
		m.statsReports,
		m.anomalies,
		m.trackedPatterns,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordPolicyServed counts one answered policy fetch.
func (m *Metrics) RecordPolicyServed(service, outcome string) {
	if m == nil {
		return
	}
	m.policiesServed.WithLabelValues(service, outcome).Inc()
}

// RecordStatsReport counts one accepted stats report and updates the
// service's tracked-pattern gauge.
func (m *Metrics) RecordStatsReport(service string, tracked int) {
	if m == nil {
		return
	}
	m.statsReports.WithLabelValues(service).Inc()
	m.trackedPatterns.WithLabelValues(service).Set(float64(tracked))
}

// RecordAnalysis counts one generated policy and its anomalies, and resets
// the service's pattern gauge for the fresh window.
func (m *Metrics) RecordAnalysis(service, strategy string, anomalies []model.AnomalyEvent) {
	if m == nil {
		return
	}
	m.policiesGenerated.WithLabelValues(service, strategy).Inc()
	for _, a := range anomalies {
		m.anomalies.WithLabelValues(string(a.Kind)).Inc()
	}
	m.trackedPatterns.WithLabelValues(service).Set(0)
}
