// Package testdata generates synthetic log traffic for tests and examples.
// Streams are deterministic per seed, so assertions on pattern counts hold
// across runs.
package testdata

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/crimson-sun/winnow/internal/model"
)

// Template is one synthetic traffic shape: a renderer producing messages
// that differ only in volatile tokens, plus the weight it carries in the mix.
type Template struct {
	Name     string
	Severity model.Severity
	Weight   int
	Render   func(r *rand.Rand) string
}

// DefaultTemplates mirrors ordinary service traffic: noisy request and cache
// chatter, a slice of warnings, a trickle of errors. Every template collapses
// to a single signature under normalization.
func DefaultTemplates() []Template {
	return []Template{
		{
			Name: "http_request", Severity: model.SeverityInfo, Weight: 40,
			Render: func(r *rand.Rand) string {
				return fmt.Sprintf("GET /api/users/%d took %dms", r.IntN(5000), 1+r.IntN(250))
			},
		},
		{
			Name: "cache_hit", Severity: model.SeverityDebug, Weight: 25,
			Render: func(r *rand.Rand) string {
				return fmt.Sprintf("cache hit for key user:%d", r.IntN(5000))
			},
		},
		{
			Name: "login", Severity: model.SeverityInfo, Weight: 20,
			Render: func(r *rand.Rand) string {
				return fmt.Sprintf("user %d logged in from 10.0.%d.%d", r.IntN(5000), r.IntN(256), r.IntN(256))
			},
		},
		{
			Name: "slow_query", Severity: model.SeverityWarning, Weight: 10,
			Render: func(r *rand.Rand) string {
				return fmt.Sprintf("slow query: SELECT * FROM orders WHERE id = %d took %dms", r.IntN(100000), 500+r.IntN(4500))
			},
		},
		{
			Name: "upstream_timeout", Severity: model.SeverityError, Weight: 5,
			Render: func(r *rand.Rand) string {
				return fmt.Sprintf("request %d failed: upstream timeout after %dms", r.IntN(1000000), 1000+r.IntN(29000))
			},
		},
	}
}

// Generator emits synthetic events from a weighted template mix.
type Generator struct {
	templates []Template
	total     int
	rng       *rand.Rand
	now       time.Time
	service   string
}

// New creates a deterministic generator for the given seed. Nil templates
// means DefaultTemplates; non-positive weights count as 1.
func New(seed uint64, templates []Template) *Generator {
	if len(templates) == 0 {
		templates = DefaultTemplates()
	}
	total := 0
	for i := range templates {
		if templates[i].Weight <= 0 {
			templates[i].Weight = 1
		}
		total += templates[i].Weight
	}
	return &Generator{
		templates: templates,
		total:     total,
		rng:       rand.New(rand.NewPCG(seed, seed)),
		now:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		service:   "synthetic",
	}
}

// Next emits one event. Timestamps advance a few milliseconds per event so
// generated windows have realistic durations.
func (g *Generator) Next() model.LogEvent {
	pick := g.rng.IntN(g.total)
	var tpl Template
	for _, candidate := range g.templates {
		if pick < candidate.Weight {
			tpl = candidate
			break
		}
		pick -= candidate.Weight
	}
	g.now = g.now.Add(time.Duration(1+g.rng.IntN(20)) * time.Millisecond)
	return model.LogEvent{
		Message:   tpl.Render(g.rng),
		Severity:  tpl.Severity,
		Timestamp: g.now,
		Service:   g.service,
	}
}

// Events returns the next n events.
func (g *Generator) Events(n int) []model.LogEvent {
	out := make([]model.LogEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}
