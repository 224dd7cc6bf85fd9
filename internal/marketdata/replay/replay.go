// Package replay provides a tick source that serves a pre-recorded price
// series one sample at a time and reports exhaustion deterministically.
package replay

import (
	"context"

	"cryptobot/internal/model"
)

// Source replays a static ordered price series by position. Used only by
// the engine's single tick goroutine, so no locks needed.
type Source struct {
	points []model.PricePoint
	idx    int
}

// New creates a replay source over the given series. The series is not
// copied; callers must not mutate it during the run.
func New(points []model.PricePoint) *Source {
	return &Source{points: points}
}

// Seed returns the first sample without consuming it. ok=false for an
// empty series; the run will simply produce zero ticks.
func (s *Source) Seed(ctx context.Context) (model.PricePoint, bool, error) {
	if len(s.points) == 0 {
		return model.PricePoint{}, false, nil
	}
	return s.points[0], true, nil
}

// Next returns the sample at the current position and advances. Returns
// model.ErrExhausted past the end of the series.
func (s *Source) Next(ctx context.Context) (model.PricePoint, error) {
	if s.idx >= len(s.points) {
		return model.PricePoint{}, model.ErrExhausted
	}
	p := s.points[s.idx]
	s.idx++
	return p, nil
}

// Progress reports replay completion in percent.
func (s *Source) Progress() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return float64(s.idx) / float64(len(s.points)) * 100
}
