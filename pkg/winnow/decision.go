package winnow

import "github.com/crimson-sun/winnow/internal/model"

// Severity is the canonical log level ladder.
type Severity = model.Severity

const (
	SeverityDebug    = model.SeverityDebug
	SeverityInfo     = model.SeverityInfo
	SeverityWarning  = model.SeverityWarning
	SeverityError    = model.SeverityError
	SeverityCritical = model.SeverityCritical
)

// ParseSeverity maps a level string such as "info" or "WARN" to a Severity.
// Unknown strings report false.
func ParseSeverity(s string) (Severity, bool) {
	return model.ParseSeverity(s)
}

// Decision is the outcome of sampling a single log event.
type Decision = model.Decision

// Reason labels which rule produced a Decision.
type Reason = model.Reason

const (
	ReasonAlwaysSampleSeverity = model.ReasonAlwaysSampleSeverity
	ReasonPatternOverride      = model.ReasonPatternOverride
	ReasonSeverityRate         = model.ReasonSeverityRate
	ReasonAnomalyBoost         = model.ReasonAnomalyBoost
	ReasonFallbackNoPolicy     = model.ReasonFallbackNoPolicy
)

// Policy is a sampling policy, either issued by a winnowd backend or
// installed locally.
type Policy = model.SamplingPolicy

// DefaultPolicy returns the conservative policy used before any analysis
// has happened. Errors pass at full rate, chatter is thinned.
func DefaultPolicy() Policy {
	return model.DefaultPolicy()
}

// Event is a kept log event as handed to an Output.
type Event = model.LogEvent
