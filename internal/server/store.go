// Package server is the winnowd backend: an in-memory store of per-service
// pattern windows, the analysis scheduler that turns windows into policies,
// and the gin handlers that speak the distribution protocol.
package server

import (
	"sort"
	"sync"
	"time"

	"github.com/crimson-sun/winnow/internal/engine/anomaly"
	"github.com/crimson-sun/winnow/internal/engine/tracker"
	"github.com/crimson-sun/winnow/internal/model"
)

// DefaultHistorySize is how many closed windows a service keeps for baseline
// statistics when no explicit size is configured.
const DefaultHistorySize = 12

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxPatterns bounds each service's window tracker.
func WithMaxPatterns(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxPatterns = n
		}
	}
}

// WithHistorySize bounds how many closed windows a service retains.
func WithHistorySize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithStoreClock overrides the time source. Used by tests that need fixed
// window bounds and report stamps.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// serviceState is everything the backend knows about one reporting service.
// The Store mutex guards all of it; the tracker's own lock only matters to
// the tracker internally.
type serviceState struct {
	tracker     *tracker.Tracker
	windowStart time.Time
	lastReport  time.Time
	history     []anomaly.Window
	policy      *model.SamplingPolicy
}

// Store holds per-service pattern windows, window history, and the current
// policy for every service that has ever reported. One mutex guards the whole
// map: every operation is in-memory bookkeeping, so contention stays cheap
// and the scheduler never observes a half-updated service.
type Store struct {
	mu          sync.Mutex
	services    map[string]*serviceState
	maxPatterns int
	historySize int
	now         func() time.Time
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		services:    make(map[string]*serviceState),
		maxPatterns: tracker.DefaultMaxEntries,
		historySize: DefaultHistorySize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest merges a sampler's stats report into the service's current window,
// creating the service on first sight. It returns how many patterns the
// report carried and how many the window now tracks.
func (s *Store) Ingest(report model.StatsReport) (accepted, tracked int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.services[report.ServiceName]
	if !ok {
		st = &serviceState{
			tracker:     tracker.New(s.maxPatterns),
			windowStart: now,
		}
		s.services[report.ServiceName] = st
	}
	for _, ps := range report.Patterns {
		st.tracker.Merge(ps)
	}
	st.lastReport = now
	return len(report.Patterns), st.tracker.Len()
}

// Policy returns the service's current policy. The bool is false when the
// service has never reported; a known service that has not been analyzed yet
// gets the built-in default policy at version 0.
func (s *Store) Policy(service string) (model.SamplingPolicy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.services[service]
	if !ok {
		return model.SamplingPolicy{}, false
	}
	if st.policy == nil {
		return model.DefaultPolicy(), true
	}
	return *st.policy, true
}

// SetPolicy records the service's freshly generated policy. Unknown services
// are created so a policy pushed before the first report is not lost.
func (s *Store) SetPolicy(service string, pol model.SamplingPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.services[service]
	if !ok {
		st = &serviceState{
			tracker:     tracker.New(s.maxPatterns),
			windowStart: s.now(),
		}
		s.services[service] = st
	}
	st.policy = &pol
}

// Rotate closes the service's current window and returns it together with
// the prior history and the previously issued policy, ready for one analysis
// round. The closed window joins the history and a fresh window begins at
// now. Rotation is skipped (ok=false) when the service is unknown or the
// window holds no observations; an idle stretch stays part of whichever
// window finally sees traffic, so rates reflect real elapsed time.
func (s *Store) Rotate(service string) (current anomaly.Window, history []anomaly.Window, previous *model.SamplingPolicy, ok bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, found := s.services[service]
	if !found || st.tracker.Len() == 0 {
		return anomaly.Window{}, nil, nil, false
	}

	current = anomaly.Window{
		Stats: st.tracker.Snapshot(),
		Start: st.windowStart,
		End:   now,
	}
	history = make([]anomaly.Window, len(st.history))
	copy(history, st.history)

	st.history = append(st.history, current)
	if len(st.history) > s.historySize {
		st.history = st.history[len(st.history)-s.historySize:]
	}
	st.tracker.Reset()
	st.windowStart = now

	return current, history, st.policy, true
}

// ServiceInfo is one row of the service registry.
type ServiceInfo struct {
	Name          string    `json:"name"`
	Patterns      int       `json:"patterns"`
	LastReport    time.Time `json:"last_report"`
	PolicyVersion int       `json:"policy_version"`
}

// Services lists every known service sorted by name.
func (s *Store) Services() []ServiceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ServiceInfo, 0, len(s.services))
	for name, st := range s.services {
		info := ServiceInfo{
			Name:       name,
			Patterns:   st.tracker.Len(),
			LastReport: st.lastReport,
		}
		if st.policy != nil {
			info.PolicyVersion = st.policy.Version
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActiveServices names every service whose current window has observations.
// The scheduler sweeps these.
func (s *Store) ActiveServices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.services))
	for name, st := range s.services {
		if st.tracker.Len() > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
