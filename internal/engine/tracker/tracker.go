// Package tracker maintains bounded per-signature statistics. The same
// implementation backs the client sampler (one process reporting up) and the
// backend store (one tracker per reporting service).
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/crimson-sun/winnow/internal/model"
)

// DefaultMaxEntries bounds a tracker that was created with no explicit size.
const DefaultMaxEntries = 10000

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source. Used by tests that need fixed
// first/last-seen stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker counts observations per signature under an LRU bound. When the
// bound is hit, the least-recently-observed pattern is dropped silently:
// losing a cold pattern's counts is acceptable, blocking an Observe call is
// not. All methods are safe for concurrent use; the mutex only ever guards
// in-memory map mutation, never I/O or callbacks.
type Tracker struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *model.PatternStats]
	now func() time.Time
}

// New creates a Tracker bounded to maxEntries patterns. maxEntries <= 0
// falls back to DefaultMaxEntries.
func New(maxEntries int, opts ...Option) *Tracker {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// Error is impossible for a positive size.
	lru, _ := simplelru.NewLRU[string, *model.PatternStats](maxEntries, nil)
	t := &Tracker{lru: lru, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records one occurrence of a signature. The message becomes the
// pattern's sample on first sight, truncated to model.SampleMessageLimit.
func (t *Tracker) Observe(sig string, severity model.Severity, message string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.lru.Get(sig)
	if !ok {
		st = &model.PatternStats{
			Signature:         sig,
			SampleMessage:     truncate(message),
			SeverityHistogram: make(map[model.Severity]uint64, 5),
			FirstSeen:         now,
		}
		t.lru.Add(sig, st)
	}
	st.Count++
	st.SeverityHistogram[severity]++
	st.LastSeen = now
}

// Merge folds externally aggregated stats into the tracker, preserving the
// earliest FirstSeen and latest LastSeen. The backend uses this to absorb
// reports uploaded by samplers.
func (t *Tracker) Merge(ps model.PatternStats) {
	if ps.Signature == "" || ps.Count == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.lru.Get(ps.Signature)
	if !ok {
		st = &model.PatternStats{
			Signature:         ps.Signature,
			SampleMessage:     truncate(ps.SampleMessage),
			SeverityHistogram: make(map[model.Severity]uint64, len(ps.SeverityHistogram)),
			FirstSeen:         ps.FirstSeen,
			LastSeen:          ps.LastSeen,
		}
		t.lru.Add(ps.Signature, st)
	}
	st.Count += ps.Count
	for sev, n := range ps.SeverityHistogram {
		st.SeverityHistogram[sev] += n
	}
	if st.SampleMessage == "" {
		st.SampleMessage = truncate(ps.SampleMessage)
	}
	if !ps.FirstSeen.IsZero() && (st.FirstSeen.IsZero() || ps.FirstSeen.Before(st.FirstSeen)) {
		st.FirstSeen = ps.FirstSeen
	}
	if ps.LastSeen.After(st.LastSeen) {
		st.LastSeen = ps.LastSeen
	}
}

// Snapshot returns a copy of every tracked pattern, most frequent first.
// The copies are detached: callers may hold them across a Reset.
func (t *Tracker) Snapshot() []model.PatternStats {
	t.mu.Lock()
	values := t.lru.Values()
	out := make([]model.PatternStats, 0, len(values))
	for _, st := range values {
		cp := *st
		cp.SeverityHistogram = make(map[model.Severity]uint64, len(st.SeverityHistogram))
		for sev, n := range st.SeverityHistogram {
			cp.SeverityHistogram[sev] = n
		}
		out = append(out, cp)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Signature < out[j].Signature
	})
	return out
}

// Reset drops all tracked patterns, rotating the window after a report.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.lru.Purge()
	t.mu.Unlock()
}

// Len reports how many patterns are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

func truncate(s string) string {
	if len(s) > model.SampleMessageLimit {
		return s[:model.SampleMessageLimit]
	}
	return s
}
