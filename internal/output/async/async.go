package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/winnow/internal/model"
	"github.com/crimson-sun/winnow/internal/output"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity (in batches).
// Default: 1024.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner output's Write fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Write return immediately (dropping the batch) when
// the buffer is full, instead of blocking. The sampler uses this so a slow
// output can never stall a Decide caller.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithLogger routes drop and drain warnings through l instead of the
// process default.
func WithLogger(l *slog.Logger) Option {
	return func(a *Async) {
		if l != nil {
			a.log = l
		}
	}
}

// Async decouples batch production from consumption via a buffered channel.
// The sampler writes into the channel; a background goroutine drains it to
// the wrapped output. Errors from the inner output are passed to errFunc
// rather than propagated to the caller.
type Async struct {
	inner      output.Output
	ch         chan []model.LogEvent
	done       chan struct{}
	errFunc    func(error)
	log        *slog.Logger
	bufSize    int
	dropOnFull bool
	closeOnce  sync.Once
}

// New wraps an output.Output in an async channel-based writer.
// The background drain goroutine starts immediately.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:   inner,
		bufSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.errFunc == nil {
		a.errFunc = func(err error) { a.logger().Warn("async output write error", "error", err) }
	}
	a.ch = make(chan []model.LogEvent, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write sends the batch into the channel. By default, blocks if the channel
// is full (backpressure). With WithDropOnFull, returns nil immediately and
// the batch is lost.
func (a *Async) Write(_ context.Context, events []model.LogEvent) error {
	if len(events) == 0 {
		return nil
	}
	if a.dropOnFull {
		select {
		case a.ch <- events:
		default:
			a.logger().Warn("async output buffer full, dropping batch", "count", len(events))
		}
		return nil
	}
	a.ch <- events
	return nil
}

// Close closes the channel, waits for the drain goroutine to finish
// (with a timeout), then closes the inner output.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.ch)
		select {
		case <-a.done:
		case <-time.After(defaultDrainTimeout):
			a.logger().Warn("async output drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	return slog.Default()
}

// drain reads batches from the channel and writes them to the inner output.
func (a *Async) drain() {
	defer close(a.done)
	for events := range a.ch {
		if err := a.inner.Write(context.Background(), events); err != nil {
			a.errFunc(err)
		}
	}
}
