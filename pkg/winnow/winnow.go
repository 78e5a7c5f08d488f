package winnow

import (
	"context"
	"errors"

	"github.com/crimson-sun/winnow/internal/sampler"
	"github.com/crimson-sun/winnow/internal/transport"
)

// Sampler makes keep/drop decisions for one service's log events and, when
// connected to a backend, keeps its policy fresh and reports pattern
// statistics upstream. All methods are safe for concurrent use.
type Sampler struct {
	inner *sampler.Sampler
}

// New creates a Sampler for the named service.
func New(service string, opts ...Option) (*Sampler, error) {
	if service == "" {
		return nil, errors.New("winnow: service name required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var backend sampler.Backend
	if o.backendURL != "" {
		var topts []transport.Option
		if o.callTimeout > 0 {
			topts = append(topts, transport.WithTimeout(o.callTimeout))
		}
		backend = transport.New(o.backendURL, o.token, topts...)
	}

	sopts := make([]sampler.Option, 0, 8)
	if o.refreshInterval > 0 {
		sopts = append(sopts, sampler.WithRefreshInterval(o.refreshInterval))
	}
	if o.reportInterval > 0 {
		sopts = append(sopts, sampler.WithReportInterval(o.reportInterval))
	}
	if o.callTimeout > 0 {
		sopts = append(sopts, sampler.WithCallTimeout(o.callTimeout))
	}
	if o.policyTTLSet {
		sopts = append(sopts, sampler.WithPolicyTTL(o.policyTTL))
	}
	if o.maxPatterns > 0 {
		sopts = append(sopts, sampler.WithMaxPatterns(o.maxPatterns))
	}
	if o.logger != nil {
		sopts = append(sopts, sampler.WithLogger(o.logger))
	}
	if o.output != nil {
		sopts = append(sopts, sampler.WithOutput(o.output))
	}

	s := &Sampler{inner: sampler.New(service, backend, sopts...)}
	if o.policy != nil {
		s.inner.SetPolicy(*o.policy)
	}
	return s, nil
}

// Start fetches the initial policy and spawns the background refresh and
// report loops. Without a backend it is a no-op. The loops stop when ctx is
// canceled or Close is called.
func (s *Sampler) Start(ctx context.Context) error {
	return s.inner.Start(ctx)
}

// Decide records the event for pattern statistics and returns whether it
// should be kept. It never blocks and never does I/O.
func (s *Sampler) Decide(message string, severity Severity) Decision {
	return s.inner.Decide(message, severity)
}

// SetPolicy installs a policy locally, replacing whatever the sampler
// currently holds. The backend loops, if running, overwrite it on the next
// successful refresh.
func (s *Sampler) SetPolicy(p Policy) {
	s.inner.SetPolicy(p)
}

// Policy returns the policy currently in force, or nil when the sampler has
// none and keeps everything.
func (s *Sampler) Policy() *Policy {
	return s.inner.Policy()
}

// Close stops the background loops, uploads the final pattern report when a
// backend is configured, and flushes the output. Safe to call more than
// once.
func (s *Sampler) Close() error {
	return s.inner.Close()
}
