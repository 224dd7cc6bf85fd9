// Package live provides a tick source backed by an exchange price
// fetcher. Each Next performs one spot price request; fetch failures are
// transient and the engine skips the tick.
package live

import (
	"context"
	"fmt"
	"time"

	"cryptobot/internal/model"
)

// Source fetches the current price for one trading pair.
type Source struct {
	fetcher model.PriceFetcher
	pair    string
	now     func() time.Time // injectable clock for tests
}

// New creates a live source for the given pair.
func New(fetcher model.PriceFetcher, pair string) *Source {
	return &Source{fetcher: fetcher, pair: pair, now: time.Now}
}

// Seed fetches the initial price. Unlike replay, a failure here is fatal
// to the start: a live session cannot begin without a price.
func (s *Source) Seed(ctx context.Context) (model.PricePoint, bool, error) {
	p, err := s.Next(ctx)
	if err != nil {
		return model.PricePoint{}, false, err
	}
	return p, true, nil
}

// Next fetches a fresh spot price.
func (s *Source) Next(ctx context.Context) (model.PricePoint, error) {
	price, err := s.fetcher.SpotPrice(ctx, s.pair)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("live price %s: %w", s.pair, err)
	}
	return model.PricePoint{Time: s.now().UnixMilli(), Price: price}, nil
}

// Progress always reports 0: a live feed has no end.
func (s *Source) Progress() float64 { return 0 }
