package model

import "time"

// SampleMessageLimit caps how much of an example message a pattern retains.
const SampleMessageLimit = 200

// PatternStats aggregates every observed occurrence of one signature.
type PatternStats struct {
	Signature         string              `json:"signature"`
	SampleMessage     string              `json:"sample_message"`
	Count             uint64              `json:"count"`
	SeverityHistogram map[Severity]uint64 `json:"severity_histogram"`
	FirstSeen         time.Time           `json:"first_seen"`
	LastSeen          time.Time           `json:"last_seen"`
}

// ErrorCount sums the ERROR and CRITICAL observations of the pattern.
func (p PatternStats) ErrorCount() uint64 {
	return p.SeverityHistogram[SeverityError] + p.SeverityHistogram[SeverityCritical]
}

// StatsReport is the wire body of POST /patterns/stats.
type StatsReport struct {
	ServiceName string         `json:"service_name"`
	Patterns    []PatternStats `json:"patterns"`
}
