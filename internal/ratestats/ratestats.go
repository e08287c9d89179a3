// Package ratestats computes sample-rate statistics for eye-tracker streams
// from device timestamps.
package ratestats

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// rateStabilityThreshold is the maximum allowed rate standard deviation as a fraction of mean rate.
	// Example: 60 Hz mean → stable if stddev < 9 Hz
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// Example: 60 Hz (16.7ms interval) → stable if jitter < 3.3ms
	jitterStabilityThreshold = 0.20

	// DefaultWindow is the number of timestamps kept per stream by a Tracker
	DefaultWindow = 2048
)

// Stats summarizes the arrival rate of one stream
type Stats struct {
	Samples      int           // Timestamps considered
	Span         time.Duration // Last minus first timestamp
	RateMean     float64       // Hz
	RateStdDev   float64       // Hz, over instantaneous rates
	RateMin      float64       // Hz
	RateMax      float64       // Hz
	JitterMean   float64       // seconds
	JitterStdDev float64       // seconds
	JitterMax    float64       // seconds
	IsStable     bool
}

// Calculate computes rate statistics from device timestamps in arrival order.
//
// Stability: rate stddev < 15% of mean AND mean jitter < 20% of the expected
// interval. Fewer than two distinct timestamps yield an unstable zero rate.
func Calculate(timestamps []time.Duration) Stats {
	n := len(timestamps)
	if n < 2 {
		return Stats{Samples: n}
	}

	span := timestamps[n-1] - timestamps[0]
	if span <= 0 {
		return Stats{Samples: n, Span: span}
	}

	rateMean := float64(n-1) / span.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		intervals = append(intervals, (timestamps[i] - timestamps[i-1]).Seconds())
	}

	rates := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		if iv > 0 {
			rates = append(rates, 1.0/iv)
		}
	}
	if len(rates) == 0 {
		return Stats{Samples: n, Span: span, RateMean: rateMean}
	}

	rateMin, rateMax := rates[0], rates[0]
	var sumSquares float64
	for _, r := range rates {
		rateMin = math.Min(rateMin, r)
		rateMax = math.Max(rateMax, r)
		diff := r - rateMean
		sumSquares += diff * diff
	}
	rateStdDev := math.Sqrt(sumSquares / float64(len(rates)))

	expected := 1.0 / rateMean
	var jitterSum, jitterMax float64
	jitters := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		j := math.Abs(iv - expected)
		jitters = append(jitters, j)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	return Stats{
		Samples:      n,
		Span:         span,
		RateMean:     rateMean,
		RateStdDev:   rateStdDev,
		RateMin:      rateMin,
		RateMax:      rateMax,
		JitterMean:   jitterMean,
		JitterStdDev: jitterStdDev,
		JitterMax:    jitterMax,
		IsStable:     rateStdDev < rateMean*rateStabilityThreshold && jitterMean < expected*jitterStabilityThreshold,
	}
}

// Tracker records the most recent timestamps of several streams.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	window int
	rings  map[string]*ring
}

type ring struct {
	buf   []time.Duration
	next  int
	count int
	total uint64
}

// NewTracker creates a tracker keeping up to window timestamps per stream.
func NewTracker(window int) *Tracker {
	if window < 2 {
		window = DefaultWindow
	}
	return &Tracker{
		window: window,
		rings:  make(map[string]*ring),
	}
}

// Observe records one timestamp for stream.
func (t *Tracker) Observe(stream string, ts time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rings[stream]
	if !ok {
		r = &ring{buf: make([]time.Duration, t.window)}
		t.rings[stream] = r
	}
	r.buf[r.next] = ts
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.total++
}

// Total returns the number of timestamps ever observed for stream.
func (t *Tracker) Total(stream string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.rings[stream]; ok {
		return r.total
	}
	return 0
}

// Streams returns the observed stream names, sorted.
func (t *Tracker) Streams() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.rings))
	for name := range t.rings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats computes statistics over the window of stream.
func (t *Tracker) Stats(stream string) Stats {
	t.mu.Lock()
	r, ok := t.rings[stream]
	if !ok {
		t.mu.Unlock()
		return Stats{}
	}
	ordered := make([]time.Duration, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		ordered = append(ordered, r.buf[(start+i)%len(r.buf)])
	}
	t.mu.Unlock()

	return Calculate(ordered)
}
