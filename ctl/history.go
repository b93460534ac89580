package ctl

import (
	"fmt"
	"time"
)

// SmoothingKind selects the statistic used to damp measurement noise over the
// observation window.
type SmoothingKind string

const (
	// SmoothingMean averages the window (default).
	SmoothingMean SmoothingKind = "mean"
	// SmoothingEWMA weights recent samples exponentially; see Config.EWMAAlpha.
	SmoothingEWMA SmoothingKind = "ewma"
)

// validSmoothingKinds maps accepted smoothing kind strings.
var validSmoothingKinds = map[SmoothingKind]bool{
	SmoothingMean: true,
	SmoothingEWMA: true,
	"":            true, // empty defaults to mean
}

// IsValidSmoothingKind returns true if the given kind is recognized.
func IsValidSmoothingKind(kind SmoothingKind) bool {
	return validSmoothingKinds[kind]
}

// Sample is one iteration's measurements. Immutable after creation; owned by
// the History that recorded it.
type Sample struct {
	IterationID uint64
	Performance float64
	Power       float64
	IdleNs      uint64
	At          time.Time
}

// History is a bounded ring of the most recent depth samples, oldest evicted
// first. It is purely observational: it never chooses a control state.
type History struct {
	samples   []Sample
	depth     int
	next      int
	full      bool
	smoothing SmoothingKind
	alpha     float64
}

// NewHistory creates a History holding up to depth samples.
func NewHistory(depth int, smoothing SmoothingKind, alpha float64) (*History, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("history depth must be > 0, got %d", depth)
	}
	if !IsValidSmoothingKind(smoothing) {
		return nil, fmt.Errorf("unknown smoothing kind %q", smoothing)
	}
	if smoothing == "" {
		smoothing = SmoothingMean
	}
	if smoothing == SmoothingEWMA && (alpha <= 0 || alpha > 1) {
		return nil, fmt.Errorf("ewma alpha must be in (0, 1], got %g", alpha)
	}
	return &History{
		samples:   make([]Sample, depth),
		depth:     depth,
		smoothing: smoothing,
		alpha:     alpha,
	}, nil
}

// Record appends a sample, evicting the oldest when the window is at capacity.
func (h *History) Record(s Sample) {
	h.samples[h.next] = s
	h.next++
	if h.next == h.depth {
		h.next = 0
		h.full = true
	}
}

// Len returns the number of samples currently held.
func (h *History) Len() int {
	if h.full {
		return h.depth
	}
	return h.next
}

// Samples returns the window contents in arrival order, oldest first.
func (h *History) Samples() []Sample {
	n := h.Len()
	out := make([]Sample, 0, n)
	start := 0
	if h.full {
		start = h.next
	}
	for i := 0; i < n; i++ {
		out = append(out, h.samples[(start+i)%h.depth])
	}
	return out
}

// SmoothedPerformance returns the smoothed performance over the window,
// or 0 when the window is empty.
func (h *History) SmoothedPerformance() float64 {
	return h.smoothed(func(s Sample) float64 { return s.Performance })
}

// SmoothedPower returns the smoothed power over the window, or 0 when the
// window is empty.
func (h *History) SmoothedPower() float64 {
	return h.smoothed(func(s Sample) float64 { return s.Power })
}

func (h *History) smoothed(value func(Sample) float64) float64 {
	window := h.Samples()
	if len(window) == 0 {
		return 0
	}
	if h.smoothing == SmoothingEWMA {
		v := value(window[0])
		for _, s := range window[1:] {
			v = h.alpha*value(s) + (1-h.alpha)*v
		}
		return v
	}
	sum := 0.0
	for _, s := range window {
		sum += value(s)
	}
	return sum / float64(len(window))
}

// IdleFraction returns the ratio of summed idle time to the wall-clock span of
// the window. It is 0 when the window holds fewer than two samples or spans no
// elapsed time.
func (h *History) IdleFraction() float64 {
	window := h.Samples()
	if len(window) < 2 {
		return 0
	}
	span := window[len(window)-1].At.Sub(window[0].At)
	if span <= 0 {
		return 0
	}
	// Each sample's idle time covers the interval ending at it; the first
	// sample's interval lies before the window span, so it is excluded to
	// keep the ratio within the measured interval.
	var idle uint64
	for _, s := range window[1:] {
		idle += s.IdleNs
	}
	return float64(idle) / float64(span.Nanoseconds())
}
