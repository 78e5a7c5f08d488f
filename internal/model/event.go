package model

import (
	"strings"
	"time"
)

// Severity is the canonical log level ladder, ordered least to most severe.
type Severity uint8

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "INFO"
}

// ParseSeverity maps a level string to its canonical Severity. Matching is
// case-insensitive and folds common aliases: WARN means WARNING, FATAL means
// CRITICAL. Unknown levels come back as INFO with ok=false.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return SeverityDebug, true
	case "INFO":
		return SeverityInfo, true
	case "WARNING", "WARN":
		return SeverityWarning, true
	case "ERROR":
		return SeverityError, true
	case "CRITICAL", "FATAL":
		return SeverityCritical, true
	}
	return SeverityInfo, false
}

// AlwaysSampled reports whether this severity is exempt from sampling.
func (s Severity) AlwaysSampled() bool { return s >= SeverityError }

// MarshalText renders the severity name, so severity-keyed maps stay
// readable on the wire.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText accepts any spelling ParseSeverity does; unknown levels
// decode as INFO rather than failing, so a newer peer cannot break us.
func (s *Severity) UnmarshalText(b []byte) error {
	sev, _ := ParseSeverity(string(b))
	*s = sev
	return nil
}

// LogEvent is one emitted log line at the moment of the sampling decision.
type LogEvent struct {
	Message   string            `json:"message"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}
