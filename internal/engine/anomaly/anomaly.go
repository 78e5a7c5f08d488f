// Package anomaly flags deviations in recent log traffic: rate spikes,
// error surges, never-seen patterns, and statistical outliers. The detector
// is stateless between calls; the caller owns the baseline windows.
package anomaly

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/crimson-sun/winnow/internal/model"
)

// Defaults for Options fields left zero.
const (
	DefaultSpikeMultiplier      = 5.0
	DefaultErrorSurgeMultiplier = 3.0
	DefaultZThreshold           = 3.0
	DefaultMinHistory           = 3
)

// Window is one observation interval: the pattern stats gathered during it
// and the interval bounds. A zero Start/End pair is treated as a one-second
// window, which keeps raw counts usable as rates.
type Window struct {
	Stats []model.PatternStats
	Start time.Time
	End   time.Time
}

// Total sums every observation in the window.
func (w Window) Total() uint64 {
	var n uint64
	for _, st := range w.Stats {
		n += st.Count
	}
	return n
}

// Errors sums ERROR and CRITICAL observations in the window.
func (w Window) Errors() uint64 {
	var n uint64
	for _, st := range w.Stats {
		n += st.ErrorCount()
	}
	return n
}

// seconds returns the window length, defaulting to 1s for unset bounds.
func (w Window) seconds() float64 {
	d := w.End.Sub(w.Start)
	if d <= 0 {
		return 1
	}
	return d.Seconds()
}

// Rate is the window's overall events per second.
func (w Window) Rate() float64 { return float64(w.Total()) / w.seconds() }

// errorRate is the window's ERROR+CRITICAL events per second.
func (w Window) errorRate() float64 { return float64(w.Errors()) / w.seconds() }

// Options holds detection thresholds. Zero fields take the package defaults.
type Options struct {
	SpikeMultiplier      float64 // current/baseline rate ratio that counts as a spike
	ErrorSurgeMultiplier float64 // current/baseline error ratio that counts as a surge
	ZThreshold           float64 // per-signature count z-score cutoff
	MinHistory           int     // samples required before z-scores apply
}

func (o Options) withDefaults() Options {
	if o.SpikeMultiplier <= 0 {
		o.SpikeMultiplier = DefaultSpikeMultiplier
	}
	if o.ErrorSurgeMultiplier <= 0 {
		o.ErrorSurgeMultiplier = DefaultErrorSurgeMultiplier
	}
	if o.ZThreshold <= 0 {
		o.ZThreshold = DefaultZThreshold
	}
	if o.MinHistory < 2 {
		o.MinHistory = DefaultMinHistory
	}
	return o
}

// Detector evaluates a current window against history and emits anomalies.
type Detector struct {
	opts Options
}

// New creates a Detector, filling unset options with defaults.
func New(opts Options) *Detector {
	return &Detector{opts: opts.withDefaults()}
}

// Detect compares the current window with the supplied history and returns
// every anomaly found. Traffic-wide findings come first, then per-signature
// ones in the order the current window lists them. With no history, rate
// and outlier checks are skipped but every pattern is reported as new.
func (d *Detector) Detect(current Window, history []Window) []model.AnomalyEvent {
	var out []model.AnomalyEvent

	if ev, ok := d.rateSpike(current, history); ok {
		out = append(out, ev)
	}
	if ev, ok := d.errorSurge(current, history); ok {
		out = append(out, ev)
	}
	out = append(out, d.newPatterns(current, history)...)
	out = append(out, d.outliers(current, history)...)
	return out
}

func (d *Detector) rateSpike(current Window, history []Window) (model.AnomalyEvent, bool) {
	baseline := meanRate(history)
	if baseline == 0 {
		return model.AnomalyEvent{}, false
	}
	ratio := current.Rate() / baseline
	if ratio < d.opts.SpikeMultiplier {
		return model.AnomalyEvent{}, false
	}
	severity := model.AnomalyMedium
	if ratio >= 2*d.opts.SpikeMultiplier {
		severity = model.AnomalyHigh
	}
	return model.AnomalyEvent{
		Kind:       model.AnomalyRateSpike,
		Severity:   severity,
		Confidence: clamp01(ratio / d.opts.SpikeMultiplier),
		Detail:     fmt.Sprintf("log rate %.1fx baseline (%.2f/s vs %.2f/s)", ratio, current.Rate(), baseline),
	}, true
}

func (d *Detector) errorSurge(current Window, history []Window) (model.AnomalyEvent, bool) {
	baseline := meanErrorRate(history)
	currentRate := current.errorRate()

	if baseline == 0 {
		if len(history) == 0 || current.Errors() == 0 {
			return model.AnomalyEvent{}, false
		}
		// Errors after a clean baseline are always worth a look.
		return model.AnomalyEvent{
			Kind:       model.AnomalyErrorSurge,
			Severity:   model.AnomalyHigh,
			Confidence: 0.9,
			Detail:     fmt.Sprintf("%d errors after a zero-error baseline", current.Errors()),
		}, true
	}

	ratio := currentRate / baseline
	if ratio < d.opts.ErrorSurgeMultiplier {
		return model.AnomalyEvent{}, false
	}
	severity := model.AnomalyMedium
	if ratio >= 2*d.opts.ErrorSurgeMultiplier {
		severity = model.AnomalyHigh
	}
	return model.AnomalyEvent{
		Kind:       model.AnomalyErrorSurge,
		Severity:   severity,
		Confidence: clamp01(ratio / 5),
		Detail:     fmt.Sprintf("error rate %.1fx baseline (%.2f/s vs %.2f/s)", ratio, currentRate, baseline),
	}, true
}

func (d *Detector) newPatterns(current Window, history []Window) []model.AnomalyEvent {
	known := make(map[string]struct{})
	for _, w := range history {
		for _, st := range w.Stats {
			known[st.Signature] = struct{}{}
		}
	}

	total := current.Total()
	var out []model.AnomalyEvent
	for _, st := range current.Stats {
		if _, seen := known[st.Signature]; seen {
			continue
		}
		severity := model.AnomalyMedium
		if total > 0 && float64(st.Count)/float64(total) >= 0.1 {
			severity = model.AnomalyHigh
		}
		out = append(out, model.AnomalyEvent{
			Kind:       model.AnomalyNewPattern,
			Signature:  st.Signature,
			Severity:   severity,
			Confidence: 1.0,
			Detail:     "new pattern: " + head(st.SampleMessage, 100),
		})
	}
	return out
}

func (d *Detector) outliers(current Window, history []Window) []model.AnomalyEvent {
	if len(history) < d.opts.MinHistory {
		return nil
	}

	var out []model.AnomalyEvent
	for _, st := range current.Stats {
		samples := historicalCounts(st.Signature, history)
		if len(samples) < d.opts.MinHistory {
			continue
		}
		mean := stat.Mean(samples, nil)
		stddev := stat.StdDev(samples, nil)
		if stddev == 0 {
			continue
		}
		z := (float64(st.Count) - mean) / stddev
		if z < 0 {
			z = -z
		}
		if z < d.opts.ZThreshold {
			continue
		}
		severity := model.AnomalyLow
		switch {
		case z >= 5:
			severity = model.AnomalyHigh
		case z >= 4:
			severity = model.AnomalyMedium
		}
		out = append(out, model.AnomalyEvent{
			Kind:       model.AnomalyStatisticalOutlier,
			Signature:  st.Signature,
			Severity:   severity,
			Confidence: clamp01(z / 10),
			Detail:     fmt.Sprintf("count %d vs rolling mean %.1f (z=%.2f)", st.Count, mean, z),
		})
	}
	return out
}

// historicalCounts collects the signature's count in each history window it
// appeared in. Windows without the signature contribute nothing: sparse
// patterns stay below MinHistory instead of averaging against zeros.
func historicalCounts(sig string, history []Window) []float64 {
	var samples []float64
	for _, w := range history {
		for _, st := range w.Stats {
			if st.Signature == sig {
				samples = append(samples, float64(st.Count))
				break
			}
		}
	}
	return samples
}

func meanRate(history []Window) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, w := range history {
		sum += w.Rate()
	}
	return sum / float64(len(history))
}

func meanErrorRate(history []Window) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, w := range history {
		sum += w.errorRate()
	}
	return sum / float64(len(history))
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
