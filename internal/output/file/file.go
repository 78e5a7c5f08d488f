package file

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/crimson-sun/winnow/internal/model"
	"github.com/crimson-sun/winnow/internal/output"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 10
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the file size (MB) at which rotation triggers.
// Default: 100.
func WithMaxSize(mb int) Option {
	return func(o *Output) { o.lj.MaxSize = mb }
}

// WithMaxBackups sets how many rotated files to keep. Default: 10.
// 0 keeps all of them.
func WithMaxBackups(n int) Option {
	return func(o *Output) { o.lj.MaxBackups = n }
}

// WithMaxAge sets how many days a rotated file is kept. Default: no
// age-based cleanup.
func WithMaxAge(days int) Option {
	return func(o *Output) { o.lj.MaxAge = days }
}

// WithCompress gzips rotated files.
func WithCompress() Option {
	return func(o *Output) { o.lj.Compress = true }
}

// Output writes kept events to a file as one line per event, with
// size-based rotation handled by lumberjack.
type Output struct {
	mu     sync.Mutex
	lj     *lumberjack.Logger
	format output.Format
}

// New creates a file output writing to the given path. The file is created
// lazily on the first write.
func New(path string, format output.Format, opts ...Option) *Output {
	o := &Output{
		lj: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    defaultMaxSizeMB,
			MaxBackups: defaultMaxBackups,
		},
		format: format,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write encodes the batch and appends it in a single write, so lines from
// concurrent batches never interleave.
func (o *Output) Write(_ context.Context, events []model.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, e := range events {
		line, err := output.EncodeEvent(e, o.format)
		if err != nil {
			return fmt.Errorf("file output: encode: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.lj.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	return nil
}

// Close closes the current log file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.lj.Close(); err != nil {
		return fmt.Errorf("file output: close: %w", err)
	}
	return nil
}
