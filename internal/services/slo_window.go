package services

import (
	"sort"
	"time"

	"github.com/burnwatch/burnwatch/internal/domain/slo"
)

// metricWindow holds the rolling sample buffer for one SLO target.
// Samples are kept for twice the target's window so trailing queries
// near the window edge stay answerable. Not safe for concurrent use;
// the owning manager serializes access.
type metricWindow struct {
	window  time.Duration
	samples []slo.Sample
}

func newMetricWindow(window time.Duration) *metricWindow {
	return &metricWindow{window: window}
}

// Insert appends a sample and prunes everything older than twice the
// window. Out-of-order timestamps are accepted; ordering is resolved
// at query time.
func (w *metricWindow) Insert(s slo.Sample) {
	w.samples = append(w.samples, s)
	w.prune(time.Now())
}

// InsertAt is Insert with an explicit clock, for deterministic pruning.
func (w *metricWindow) InsertAt(s slo.Sample, now time.Time) {
	w.samples = append(w.samples, s)
	w.prune(now)
}

func (w *metricWindow) prune(now time.Time) {
	cutoff := now.Add(-2 * w.window)
	kept := w.samples[:0]
	for _, s := range w.samples {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	w.samples = kept
}

// SamplesInWindow returns the samples with timestamp in
// [now-window, now], sorted ascending by timestamp.
func (w *metricWindow) SamplesInWindow(now time.Time) []slo.Sample {
	cutoff := now.Add(-w.window)
	out := make([]slo.Sample, 0, len(w.samples))
	for _, s := range w.samples {
		if !s.Timestamp.Before(cutoff) && !s.Timestamp.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Len returns the number of buffered samples, including those outside
// the query window but inside the retention window.
func (w *metricWindow) Len() int {
	return len(w.samples)
}
