package model

// Reason labels which rule produced a sampling decision.
type Reason string

const (
	ReasonAlwaysSampleSeverity Reason = "always_sample_severity"
	ReasonPatternOverride      Reason = "pattern_override"
	ReasonSeverityRate         Reason = "severity_rate"
	ReasonAnomalyBoost         Reason = "anomaly_boost"
	ReasonFallbackNoPolicy     Reason = "fallback_no_policy"
)

// Decision is the per-event sampling outcome. Ephemeral, computed per call.
type Decision struct {
	Signature string
	Sampled   bool
	Rate      float64
	Reason    Reason
}
