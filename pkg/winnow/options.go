package winnow

import (
	"log/slog"
	"time"
)

type options struct {
	backendURL      string
	token           string
	refreshInterval time.Duration
	reportInterval  time.Duration
	callTimeout     time.Duration
	policyTTL       time.Duration
	policyTTLSet    bool
	maxPatterns     int
	policy          *Policy
	output          Output
	logger          *slog.Logger
}

// Option configures a Sampler.
type Option func(*options)

// WithBackend points the sampler at a winnowd instance. token is sent as a
// bearer credential and may be empty when the backend does not check one.
// Without this option the sampler runs standalone.
func WithBackend(baseURL, token string) Option {
	return func(o *options) {
		o.backendURL = baseURL
		o.token = token
	}
}

// WithRefreshInterval sets how often the sampler pulls a fresh policy from
// the backend.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) { o.refreshInterval = d }
}

// WithReportInterval sets how often the sampler uploads pattern statistics.
func WithReportInterval(d time.Duration) Option {
	return func(o *options) { o.reportInterval = d }
}

// WithCallTimeout bounds each backend call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithPolicyTTL sets how long a fetched policy stays trusted without a
// successful refresh; after that the sampler falls back to keeping
// everything. 0 disables expiry.
func WithPolicyTTL(d time.Duration) Option {
	return func(o *options) {
		o.policyTTL = d
		o.policyTTLSet = true
	}
}

// WithMaxPatterns bounds how many distinct patterns the sampler tracks
// between reports. Cold patterns are evicted first.
func WithMaxPatterns(n int) Option {
	return func(o *options) { o.maxPatterns = n }
}

// WithPolicy installs a starting policy. Useful standalone, or to shape
// traffic during the first moments before a backend fetch lands.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = &p }
}

// WithOutput forwards every kept event to out. Writes happen on a
// background goroutine and are dropped, not queued, when out cannot keep
// up, so Decide never blocks.
func WithOutput(out Output) Option {
	return func(o *options) { o.output = out }
}

// WithLogger routes the sampler's own diagnostics through l instead of
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
