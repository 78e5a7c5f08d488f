package server

import (
	"context"
	"time"

	"github.com/crimson-sun/winnow/internal/engine"
)

const (
	// DefaultDebounce is how long the scheduler waits after a stats report
	// before analyzing, so a burst of reports costs one round.
	DefaultDebounce = 2 * time.Second

	// DefaultSweepInterval is how often every active service is analyzed
	// regardless of nudges.
	DefaultSweepInterval = time.Minute
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDebounce sets the nudge debounce delay.
func WithDebounce(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithSweepInterval sets the periodic sweep interval.
func WithSweepInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweep = d
		}
	}
}

// Scheduler runs every analysis round on one goroutine, so policy generation
// never races itself for a service. Stats reports nudge it for an early,
// debounced round; a periodic sweep covers services whose reports went quiet.
type Scheduler struct {
	store    *Store
	analyzer *engine.Analyzer
	metrics  *Metrics
	debounce time.Duration
	sweep    time.Duration
	nudges   chan string
}

// NewScheduler wires a Scheduler to the store it rotates windows out of and
// the analyzer that turns them into policies. metrics may be nil.
func NewScheduler(store *Store, analyzer *engine.Analyzer, metrics *Metrics, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		analyzer: analyzer,
		metrics:  metrics,
		debounce: DefaultDebounce,
		sweep:    DefaultSweepInterval,
		nudges:   make(chan string, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Nudge requests an early analysis of a service. It never blocks; when the
// queue is full the next sweep picks the service up anyway.
func (s *Scheduler) Nudge(service string) {
	select {
	case s.nudges <- service:
	default:
	}
}

// Run processes nudges and sweeps until the context is cancelled. The first
// nudge arms the debounce timer; services reported while it runs join the
// same round.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	dirty := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case svc := <-s.nudges:
			dirty[svc] = struct{}{}
			if fire == nil {
				timer = time.NewTimer(s.debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			for svc := range dirty {
				delete(dirty, svc)
				s.analyze(ctx, svc)
			}
		case <-ticker.C:
			// The sweep covers everything, pending nudges included.
			if timer != nil {
				timer.Stop()
				timer, fire = nil, nil
			}
			clear(dirty)
			for _, svc := range s.store.ActiveServices() {
				s.analyze(ctx, svc)
			}
		}
	}
}

// analyze rotates one service's window and generates its next policy.
func (s *Scheduler) analyze(ctx context.Context, service string) {
	current, history, previous, ok := s.store.Rotate(service)
	if !ok {
		return
	}
	res := s.analyzer.Analyze(ctx, service, current, history, previous)
	s.store.SetPolicy(service, res.Policy)
	s.metrics.RecordAnalysis(service, res.Policy.GeneratedBy, res.Anomalies)
}
