// Package candles serves historical OHLC data through a local cache.
// Ranges already cached are answered without touching the exchange;
// only the missing tail is fetched and persisted.
package candles

import (
	"context"
	"fmt"
	"log"
	"time"

	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
)

// Fetcher fetches candles from the exchange.
type Fetcher interface {
	Candles(ctx context.Context, pair string, start, end time.Time, granularity int) ([]model.Candle, error)
}

// Store is the persistent candle cache.
type Store interface {
	SaveCandles(pair string, granularity int, candles []model.Candle) error
	Candles(pair string, granularity int, start, end int64) ([]model.Candle, error)
	FirstCandleTime(pair string, granularity int) (int64, error)
	LastCandleTime(pair string, granularity int) (int64, error)
}

// Cached is a read-through candle cache.
type Cached struct {
	store   Store
	fetcher Fetcher
	metrics *metrics.Metrics // may be nil
}

// New creates a cached candle provider.
func New(store Store, fetcher Fetcher, m *metrics.Metrics) *Cached {
	return &Cached{store: store, fetcher: fetcher, metrics: m}
}

// Candles returns candles for [start, end], fetching whatever part of
// the range the cache does not cover yet. The cache is treated as a
// contiguous span between its oldest and newest rows; the request's
// missing head and tail are fetched separately, so a range entirely
// older than anything cached still reaches the exchange. When the
// exchange is down the cached part of the range is still served.
func (c *Cached) Candles(ctx context.Context, pair string, start, end time.Time, granularity int) ([]model.Candle, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("candles %s: granularity must be positive", pair)
	}

	first, err := c.store.FirstCandleTime(pair, granularity)
	if err != nil {
		return nil, fmt.Errorf("candle cache: %w", err)
	}
	last, err := c.store.LastCandleTime(pair, granularity)
	if err != nil {
		return nil, fmt.Errorf("candle cache: %w", err)
	}

	if last == 0 {
		if err := c.refresh(ctx, pair, start, end, granularity); err != nil {
			log.Printf("[candles] refresh failed, serving cache only: %v", err)
		}
		return c.store.Candles(pair, granularity, start.Unix(), end.Unix())
	}

	coveredFrom := time.Unix(first, 0).UTC()
	coveredTo := time.Unix(last+int64(granularity), 0).UTC()

	if start.Before(coveredFrom) {
		headEnd := coveredFrom
		if end.Before(headEnd) {
			headEnd = end
		}
		if err := c.refresh(ctx, pair, start, headEnd, granularity); err != nil {
			// Degraded mode: the cache still answers for what it has.
			log.Printf("[candles] head refresh failed, serving cache only: %v", err)
		}
	}
	if end.After(coveredTo) {
		tailStart := coveredTo
		if start.After(tailStart) {
			tailStart = start
		}
		if err := c.refresh(ctx, pair, tailStart, end, granularity); err != nil {
			log.Printf("[candles] tail refresh failed, serving cache only: %v", err)
		}
	}

	return c.store.Candles(pair, granularity, start.Unix(), end.Unix())
}

func (c *Cached) refresh(ctx context.Context, pair string, start, end time.Time, granularity int) error {
	var timer *time.Time
	if c.metrics != nil {
		t := time.Now()
		timer = &t
	}

	fetched, err := c.fetcher.Candles(ctx, pair, start, end, granularity)
	if timer != nil {
		c.metrics.CandleFetchDur.Observe(time.Since(*timer).Seconds())
	}
	if err != nil {
		return err
	}
	if len(fetched) == 0 {
		return nil
	}
	if err := c.store.SaveCandles(pair, granularity, fetched); err != nil {
		return fmt.Errorf("candle cache write: %w", err)
	}
	log.Printf("[candles] cached %d candles pair=%s granularity=%d", len(fetched), pair, granularity)
	return nil
}
