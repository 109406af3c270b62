package bci

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of recent samples averaged into the smoothed value
const DefaultWindow = 6

// Sample is one confidence reading from the classifier
type Sample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the published view of the confidence signal
type Snapshot struct {
	Raw       float64   `json:"raw"`
	Smoothed  float64   `json:"smoothed"`
	Timestamp time.Time `json:"timestamp"`
	Samples   int       `json:"samples"`
	Valid     bool      `json:"valid"`
}

// Age of the newest sample at now. Invalid snapshots are infinitely old.
func (s Snapshot) Age(now time.Time) time.Duration {
	if !s.Valid {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(s.Timestamp)
}

// Confidence keeps a rolling window of samples. Writers serialize on a mutex and
// publish an immutable Snapshot; readers never block.
type Confidence struct {
	mu     sync.Mutex
	window []float64
	next   int
	filled int

	current atomic.Pointer[Snapshot]
}

// NewConfidence creates a holder averaging the last window samples
func NewConfidence(window int) *Confidence {
	if window < 1 {
		window = 1
	}
	c := &Confidence{window: make([]float64, window)}
	c.current.Store(&Snapshot{})
	return c
}

// Observe records a sample. Values are clamped to 0..1; NaN and Inf are dropped.
func (c *Confidence) Observe(value float64, ts time.Time) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	value = math.Max(0, math.Min(1, value))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.window[c.next] = value
	c.next = (c.next + 1) % len(c.window)
	if c.filled < len(c.window) {
		c.filled++
	}

	var smoothed float64
	if c.filled < len(c.window) {
		smoothed = stat.Mean(c.window[:c.filled], nil)
	} else {
		smoothed = stat.Mean(c.window, nil)
	}

	c.current.Store(&Snapshot{
		Raw:       value,
		Smoothed:  smoothed,
		Timestamp: ts,
		Samples:   c.filled,
		Valid:     true,
	})
	return true
}

// Snapshot returns the latest published view
func (c *Confidence) Snapshot() Snapshot {
	return *c.current.Load()
}

// Reset forgets every sample
func (c *Confidence) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = 0
	c.filled = 0
	c.current.Store(&Snapshot{})
}
