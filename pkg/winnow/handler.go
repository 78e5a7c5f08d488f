package winnow

import (
	"context"
	"log/slog"
)

// Handler is a slog.Handler that gates every record through a Sampler
// before handing it to the wrapped handler. Dropped records vanish; kept
// ones are stamped with log.signature and log.sampling_rate. Records at
// ERROR and above always pass.
type Handler struct {
	inner   slog.Handler
	sampler *Sampler
}

// NewHandler wraps inner so that s decides which records get through.
//
//	logger := slog.New(winnow.NewHandler(slog.NewJSONHandler(os.Stderr, nil), s))
func NewHandler(inner slog.Handler, s *Sampler) *Handler {
	return &Handler{inner: inner, sampler: s}
}

// Enabled defers to the wrapped handler; sampling happens per record in
// Handle, not per level.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle samples the record. Pattern statistics are recorded even for
// records that end up dropped.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	d := h.sampler.Decide(r.Message, severityFromLevel(r.Level))
	if !d.Sampled {
		return nil
	}
	r = r.Clone()
	r.AddAttrs(
		slog.String("log.signature", d.Signature),
		slog.Float64("log.sampling_rate", d.Rate),
	)
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a handler whose wrapped handler carries attrs. The
// derived handler shares the sampler, so statistics stay per service.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs), sampler: h.sampler}
}

// WithGroup returns a handler whose wrapped handler opens the group.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), sampler: h.sampler}
}

// severityFromLevel maps slog's sparse level numbers onto the severity
// ladder. Custom levels between the named ones land on the severity below;
// anything past LevelError+4 counts as critical.
func severityFromLevel(l slog.Level) Severity {
	switch {
	case l < slog.LevelInfo:
		return SeverityDebug
	case l < slog.LevelWarn:
		return SeverityInfo
	case l < slog.LevelError:
		return SeverityWarning
	case l < slog.LevelError+4:
		return SeverityError
	default:
		return SeverityCritical
	}
}
