package model

import (
	"context"
	"errors"
)

// ── Port Interfaces ──
// These interfaces decouple the engine and session from concrete
// collaborators (exchange client, Redis, SQLite). Each implementation
// satisfies one or more of these ports.

// ErrExhausted is returned by a replay tick source when the recorded
// series has been fully consumed. It is an expected terminal condition,
// not a failure.
var ErrExhausted = errors.New("tick source exhausted")

// TickSource supplies one price sample per tick. The engine accepts a
// replay source and a live source interchangeably.
type TickSource interface {
	// Seed returns the initial price sample without consuming replay
	// data. ok=false means the source has no data yet (an empty replay
	// series); a live source returns an error instead when the initial
	// fetch fails.
	Seed(ctx context.Context) (p PricePoint, ok bool, err error)

	// Next returns the next price sample. Replay sources return
	// ErrExhausted at the end of the series; live sources return a
	// transient error on fetch failure (the engine skips the tick).
	Next(ctx context.Context) (PricePoint, error)

	// Progress reports replay completion in percent. Live sources
	// always report 0.
	Progress() float64
}

// PriceFetcher returns the current spot price for a trading pair.
// Implemented by the exchange client; consumed by the live tick source.
type PriceFetcher interface {
	SpotPrice(ctx context.Context, pair string) (float64, error)
}

// OrderPlacer submits a market order to the exchange. Failures are logged
// by the caller, never surfaced to the tick loop.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, pair string, side Side, size float64) (orderID string, err error)
}

// SnapshotCache persists the latest snapshot so observers reconnecting
// after a restart see a best-effort last state.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error) // nil, nil when absent
}

// SettingsStore loads and saves the settings blob. The engine treats the
// payload as opaque.
type SettingsStore interface {
	SaveSettings(ctx context.Context, s Settings) error
	LoadSettings(ctx context.Context) (*Settings, error) // nil, nil when absent
}

// TradeJournal records executed trades for audit and the trades API.
type TradeJournal interface {
	RecordTrade(pair string, t Trade) error
	RecentTrades(limit int) ([]Trade, error)
}
