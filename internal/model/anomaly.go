package model

// AnomalyKind names the class of deviation a detector flagged.
type AnomalyKind string

const (
	AnomalyRateSpike          AnomalyKind = "rate_spike"
	AnomalyErrorSurge         AnomalyKind = "error_surge"
	AnomalyNewPattern         AnomalyKind = "new_pattern"
	AnomalyStatisticalOutlier AnomalyKind = "statistical_outlier"
)

// AnomalyLevel grades how alarming a detection is.
type AnomalyLevel string

const (
	AnomalyLow    AnomalyLevel = "low"
	AnomalyMedium AnomalyLevel = "medium"
	AnomalyHigh   AnomalyLevel = "high"
)

// AnomalyEvent is a single detected deviation in recent log traffic.
// Produced once, never mutated; signature is empty for traffic-wide kinds.
type AnomalyEvent struct {
	Kind       AnomalyKind  `json:"kind"`
	Signature  string       `json:"signature,omitempty"`
	Severity   AnomalyLevel `json:"severity"`
	Confidence float64      `json:"confidence"`
	Detail     string       `json:"detail,omitempty"`
}
