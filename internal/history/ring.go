// Package history provides the bounded rolling chart history: a fixed
// capacity ring of ChartPoints where appending beyond capacity evicts the
// oldest point. Single-goroutine usage by the engine, so no locks needed.
package history

import "cryptobot/internal/model"

// DefaultCapacity bounds the chart history kept for indicator lookback
// and client display.
const DefaultCapacity = 300

// Ring is a fixed-capacity FIFO ring of ChartPoints.
type Ring struct {
	buf   []model.ChartPoint
	start int // index of oldest point
	count int
}

// New creates a ring with the given capacity (minimum 2, so a previous
// point always fits next to the current one).
func New(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	return &Ring{buf: make([]model.ChartPoint, capacity)}
}

// Append adds a point, evicting the oldest when full.
func (r *Ring) Append(p model.ChartPoint) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = p
		r.count++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored points.
func (r *Ring) Len() int { return r.count }

// Last returns the most recent point.
func (r *Ring) Last() (model.ChartPoint, bool) {
	if r.count == 0 {
		return model.ChartPoint{}, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}

// Points returns the stored points oldest-first.
func (r *Ring) Points() []model.ChartPoint {
	out := make([]model.ChartPoint, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Prices returns the stored prices oldest-first, for SMA lookback.
func (r *Ring) Prices() []float64 {
	out := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)].Price
	}
	return out
}

// Reset clears the ring for reuse.
func (r *Ring) Reset() {
	r.start = 0
	r.count = 0
}
