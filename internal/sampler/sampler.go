// Package sampler is the client-side core of adaptive sampling: it holds
// the current policy, makes per-event keep/drop decisions, tracks local
// pattern statistics, and runs the refresh and report loops against the
// backend.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crimson-sun/winnow/internal/engine/signature"
	"github.com/crimson-sun/winnow/internal/engine/tracker"
	"github.com/crimson-sun/winnow/internal/model"
	"github.com/crimson-sun/winnow/internal/output"
	"github.com/crimson-sun/winnow/internal/output/async"
	"github.com/crimson-sun/winnow/internal/transport"
)

const (
	// DefaultRefreshInterval is how often the sampler re-fetches its policy.
	DefaultRefreshInterval = 5 * time.Minute
	// DefaultReportInterval is how often local pattern stats are uploaded.
	DefaultReportInterval = 10 * time.Minute
	// DefaultCallTimeout bounds each individual backend call.
	DefaultCallTimeout = 10 * time.Second
	// DefaultPolicyTTL is how long a fetched policy stays trusted without a
	// successful refresh: three missed refreshes plus one interval of grace.
	// Past it the sampler keeps everything rather than sample on stale
	// instructions.
	DefaultPolicyTTL = 4 * DefaultRefreshInterval
)

// ErrClosed is returned by Start after the sampler has been closed.
var ErrClosed = errors.New("sampler closed")

const (
	stateIdle int32 = iota
	stateRunning
	stateClosed
)

// Backend is the slice of the policy distribution protocol the sampler
// consumes. *transport.Client satisfies it. FetchPolicy must return policies
// that already hold the clamp invariants, as transport.Client does.
type Backend interface {
	FetchPolicy(ctx context.Context, service string) (*model.SamplingPolicy, error)
	ReportStats(ctx context.Context, report model.StatsReport) error
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithRefreshInterval sets the policy refresh cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.refreshEvery = d
		}
	}
}

// WithReportInterval sets the pattern report cadence.
func WithReportInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.reportEvery = d
		}
	}
}

// WithCallTimeout bounds each backend RPC.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithPolicyTTL sets how long a policy stays trusted without a successful
// refresh. 0 disables expiry.
func WithPolicyTTL(d time.Duration) Option {
	return func(s *Sampler) { s.policyTTL = d }
}

// WithMaxPatterns bounds the local pattern tracker.
func WithMaxPatterns(n int) Option {
	return func(s *Sampler) { s.maxPatterns = n }
}

// WithDraw overrides the uniform random source consumed by Decide,
// one call per decision. Tests inject a seeded generator here.
func WithDraw(f func() float64) Option {
	return func(s *Sampler) { s.draw = f }
}

// WithLogger routes the sampler's own log lines through l instead of the
// process default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

// WithOutput forwards every kept event to o. The sampler wraps o in a
// drop-on-full async writer, so a slow destination can never block Decide.
func WithOutput(o output.Output) Option {
	return func(s *Sampler) { s.rawOut = o }
}

// Sampler decides, per log event, whether to keep it. One instance per
// service per process. All methods are safe for concurrent use; Decide is
// O(1) and never does I/O.
type Sampler struct {
	service string
	client  Backend
	tracker *tracker.Tracker
	draw    func() float64
	log     *slog.Logger // nil means slog.Default at call time

	policy    atomic.Pointer[model.SamplingPolicy]
	fetchedAt atomic.Int64 // unix nanos of the last policy swap

	rawOut output.Output
	out    *async.Async
	outMu  sync.RWMutex // serializes forwarding against Close
	closed bool         // under outMu

	refreshEvery time.Duration
	reportEvery  time.Duration
	callTimeout  time.Duration
	policyTTL    time.Duration
	maxPatterns  int

	// Failure-streak flags, each owned by its loop goroutine. Transport
	// trouble is logged on the first failure and on recovery, not per tick.
	refreshFailing bool
	reportFailing  bool

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sampler for the named service. client may be nil, in which
// case the sampler runs standalone: no loops, policy set locally via
// SetPolicy or left absent (keep everything).
func New(service string, client Backend, opts ...Option) *Sampler {
	s := &Sampler{
		service:      service,
		client:       client,
		draw:         rand.Float64,
		refreshEvery: DefaultRefreshInterval,
		reportEvery:  DefaultReportInterval,
		callTimeout:  DefaultCallTimeout,
		policyTTL:    DefaultPolicyTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = tracker.New(s.maxPatterns)
	if s.rawOut != nil {
		s.out = async.New(s.rawOut, async.WithDropOnFull(), async.WithLogger(s.log))
	}
	return s
}

// Start performs a best-effort initial policy fetch (one retry), then spawns
// the refresh and report loops. The loops stop when ctx is canceled or Close
// is called.
func (s *Sampler) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		if s.state.Load() == stateClosed {
			return ErrClosed
		}
		return fmt.Errorf("sampler already started")
	}
	if s.client == nil {
		return nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		pol, err := s.fetchPolicy(ctx)
		if err == nil {
			s.storePolicy(pol)
			break
		}
		if errors.Is(err, transport.ErrNoPolicy) {
			// Backend does not know us yet. The report loop will
			// introduce us; run on the fallback until then.
			break
		}
		s.logger().Warn("initial policy fetch failed",
			"service", s.service, "attempt", attempt+1, "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(2)
	go s.refreshLoop(runCtx)
	go s.reportLoop(runCtx)
	return nil
}

// Decide makes the keep/drop call for one log event. Pattern statistics are
// recorded whether or not the event is kept.
func (s *Sampler) Decide(message string, severity model.Severity) model.Decision {
	sig := signature.Compute(message)
	s.tracker.Observe(sig.Value, severity, message)

	if severity.AlwaysSampled() {
		d := model.Decision{
			Signature: sig.Value,
			Sampled:   true,
			Rate:      1.0,
			Reason:    model.ReasonAlwaysSampleSeverity,
		}
		s.forward(message, severity)
		return d
	}

	rate := 1.0
	reason := model.ReasonFallbackNoPolicy
	if pol := s.currentPolicy(); pol != nil {
		if r, ok := pol.PatternRate(sig.Value); ok {
			rate, reason = r, model.ReasonPatternOverride
		} else {
			rate, reason = pol.Rate(severity), model.ReasonSeverityRate
		}
		if pol.Boosted(sig.Value) {
			rate = min(1.0, rate*pol.AnomalyBoost)
			reason = model.ReasonAnomalyBoost
		}
	}

	d := model.Decision{
		Signature: sig.Value,
		Sampled:   s.draw() < rate,
		Rate:      rate,
		Reason:    reason,
	}
	if d.Sampled {
		s.forward(message, severity)
	}
	return d
}

// SetPolicy installs a policy directly, bypassing the backend. The policy is
// clamped on the way in like any fetched one.
func (s *Sampler) SetPolicy(pol model.SamplingPolicy) {
	clamped := pol.Clamp()
	s.storePolicy(&clamped)
}

// Policy returns the currently installed policy, or nil if none has been
// fetched or set. Expiry is not applied here; Decide handles that.
func (s *Sampler) Policy() *model.SamplingPolicy {
	return s.policy.Load()
}

// Close stops both loops, waits for them, uploads one final best-effort
// pattern report, and closes the output. Safe to call more than once.
func (s *Sampler) Close() error {
	if s.state.Swap(stateClosed) == stateClosed {
		return nil
	}

	s.outMu.Lock()
	s.closed = true
	s.outMu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
		s.report(ctx)
		cancel()
	}

	if s.out != nil {
		return s.out.Close()
	}
	return nil
}

// currentPolicy returns the installed policy, or nil when it has outlived
// its TTL. Expiry only applies when a backend is wired: a static local
// policy cannot go stale.
func (s *Sampler) currentPolicy() *model.SamplingPolicy {
	pol := s.policy.Load()
	if pol == nil {
		return nil
	}
	if s.client != nil && s.policyTTL > 0 {
		age := time.Since(time.Unix(0, s.fetchedAt.Load()))
		if age > s.policyTTL {
			return nil
		}
	}
	return pol
}

func (s *Sampler) storePolicy(pol *model.SamplingPolicy) {
	s.policy.Store(pol)
	s.fetchedAt.Store(time.Now().UnixNano())
}

// logger resolves at call time so a process that installs its default
// handler after New still gets obeyed.
func (s *Sampler) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return slog.Default()
}

// forward hands a kept event to the output. The read lock pairs with the
// write lock in Close, so a forward can never race the channel close inside
// the async writer.
func (s *Sampler) forward(message string, severity model.Severity) {
	if s.out == nil {
		return
	}
	ev := model.LogEvent{
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		Service:   s.service,
	}
	s.outMu.RLock()
	if !s.closed {
		s.out.Write(context.Background(), []model.LogEvent{ev})
	}
	s.outMu.RUnlock()
}

func (s *Sampler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Sampler) refresh(ctx context.Context) {
	pol, err := s.fetchPolicy(ctx)
	if err != nil && errors.Is(err, transport.ErrNoPolicy) {
		// The backend answered but does not know us yet. Not a failure.
		err = nil
	}
	if err != nil {
		if !s.refreshFailing {
			s.refreshFailing = true
			s.logger().Warn("policy refresh failing", "service", s.service, "error", err)
		}
		return
	}
	if s.refreshFailing {
		s.refreshFailing = false
		s.logger().Info("policy refresh recovered", "service", s.service)
	}
	if pol == nil {
		return
	}
	if prev := s.policy.Load(); prev != nil && pol.Version <= prev.Version {
		return
	}
	s.storePolicy(pol)
	s.logger().Info("policy updated", "service", s.service, "version", pol.Version)
}

func (s *Sampler) fetchPolicy(ctx context.Context) (*model.SamplingPolicy, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.client.FetchPolicy(cctx, s.service)
}

func (s *Sampler) reportLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.reportEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

// report rotates the local window and uploads it. The window is dropped
// whether or not the upload lands: stats loss is acceptable, unbounded
// buffering is not.
func (s *Sampler) report(ctx context.Context) {
	patterns := s.tracker.Snapshot()
	if len(patterns) == 0 {
		return
	}
	s.tracker.Reset()

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	err := s.client.ReportStats(cctx, model.StatsReport{
		ServiceName: s.service,
		Patterns:    patterns,
	})
	if err != nil {
		if !s.reportFailing {
			s.reportFailing = true
			s.logger().Warn("pattern reporting failing",
				"service", s.service, "patterns", len(patterns), "error", err)
		}
		return
	}
	if s.reportFailing {
		s.reportFailing = false
		s.logger().Info("pattern reporting recovered", "service", s.service)
	}
	s.logger().Debug("pattern report sent", "service", s.service, "patterns", len(patterns))
}
