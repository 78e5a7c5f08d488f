// Package policy turns window analyses into versioned sampling policies.
// Rate selection is pluggable: strategies register by name, and the
// generator validates whatever they propose before a policy is issued.
package policy

import (
	"context"
	"fmt"

	"github.com/crimson-sun/winnow/internal/model"
)

// Analysis is everything a strategy may weigh when proposing rates: the
// window's patterns (highest volume first), their clusters, and whatever the
// detector flagged.
type Analysis struct {
	Service   string
	Patterns  []model.PatternStats
	Clusters  []model.Cluster
	Anomalies []model.AnomalyEvent
}

// TotalCount sums every pattern observation in the analyzed window.
func (a Analysis) TotalCount() uint64 {
	var n uint64
	for _, p := range a.Patterns {
		n += p.Count
	}
	return n
}

// ErrorRate is the ERROR+CRITICAL share of the analyzed window, in [0,1].
func (a Analysis) ErrorRate() float64 {
	total := a.TotalCount()
	if total == 0 {
		return 0
	}
	var errs uint64
	for _, p := range a.Patterns {
		errs += p.ErrorCount()
	}
	return float64(errs) / float64(total)
}

// Proposal is a strategy's suggested rate set, before validation. The
// generator clamps every proposal; strategies need not defend the policy
// invariants themselves.
type Proposal struct {
	GlobalRate    float64
	SeverityRates model.SeverityRates
	PatternRates  map[string]float64
	AnomalyBoost  float64
	Reasoning     string
}

// Strategy proposes sampling rates for an analyzed window.
type Strategy interface {
	// Name identifies the strategy in policy provenance and logs.
	Name() string

	// Propose suggests policy rates. An error tells the generator to fall
	// back to the rule-based strategy.
	Propose(ctx context.Context, a Analysis) (Proposal, error)
}

// Settings holds strategy construction options. Fields only matter to
// strategies that use them; rules ignores all of them.
type Settings struct {
	APIKey      string // credential for remote strategies
	BaseURL     string // API endpoint override, for proxies and tests
	Model       string // chat model name
	TokenBudget int    // prompt size ceiling in estimated tokens
}

// Constructor builds a configured Strategy instance.
type Constructor func(s Settings) (Strategy, error)

var registry = map[string]Constructor{}

// Register adds a strategy constructor under the given name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the strategy constructor for the given name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown policy strategy: %s", name)
	}
	return ctor, nil
}

// Strategies returns the names of all registered strategies.
func Strategies() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
