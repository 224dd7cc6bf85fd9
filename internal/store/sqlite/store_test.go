package sqlite

import (
	"path/filepath"
	"testing"

	"cryptobot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTradeJournalRoundTrip(t *testing.T) {
	s := newTestStore(t)

	trades := []model.Trade{
		{ID: 1, Type: model.SideBuy, Price: 100, Amount: 0.5, Time: 1000, Reason: "MACD Crossover"},
		{ID: 2, Type: model.SideSell, Price: 110, Amount: 0.5, Time: 2000, Reason: "Sell Trigger"},
		{ID: 3, Type: model.SideBuy, Price: 105, Amount: 0.25, Time: 3000, Reason: "MACD Crossover"},
	}
	for _, tr := range trades {
		if err := s.RecordTrade("BTC-USD", tr); err != nil {
			t.Fatalf("record trade %d: %v", tr.ID, err)
		}
	}

	got, err := s.RecentTrades(2)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != 3 || got[1].ID != 2 {
		t.Errorf("order: got ids %d,%d, want 3,2", got[0].ID, got[1].ID)
	}
	if got[0].Type != model.SideBuy || got[0].Reason != "MACD Crossover" {
		t.Errorf("trade fields: got %+v", got[0])
	}
}

func TestRecentTradesEmptyJournal(t *testing.T) {
	s := newTestStore(t)
	got, err := s.RecentTrades(10)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len: got %d, want 0", len(got))
	}
}

func TestCandleCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)

	candles := []model.Candle{
		{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: 120, Open: 1.5, High: 3, Low: 1, Close: 2, Volume: 20},
		{Time: 180, Open: 2, High: 4, Low: 2, Close: 3, Volume: 30},
	}
	if err := s.SaveCandles("BTC-USD", 60, candles); err != nil {
		t.Fatalf("save candles: %v", err)
	}

	got, err := s.Candles("BTC-USD", 60, 60, 120)
	if err != nil {
		t.Fatalf("query candles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0].Time != 60 || got[1].Time != 120 {
		t.Errorf("order: got %d,%d, want 60,120", got[0].Time, got[1].Time)
	}
	if got[1].Close != 2 {
		t.Errorf("close: got %v, want 2", got[1].Close)
	}

	// Upsert: rewriting a bucket replaces it, no duplicate rows.
	candles[0].Close = 9
	if err := s.SaveCandles("BTC-USD", 60, candles[:1]); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = s.Candles("BTC-USD", 60, 60, 60)
	if err != nil {
		t.Fatalf("query after upsert: %v", err)
	}
	if len(got) != 1 || got[0].Close != 9 {
		t.Errorf("upsert result: got %+v", got)
	}
}

func TestLastCandleTime(t *testing.T) {
	s := newTestStore(t)

	ts, err := s.LastCandleTime("BTC-USD", 60)
	if err != nil {
		t.Fatalf("empty cache: %v", err)
	}
	if ts != 0 {
		t.Errorf("empty cache ts: got %d, want 0", ts)
	}

	if err := s.SaveCandles("BTC-USD", 60, []model.Candle{{Time: 300}, {Time: 240}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	ts, err = s.LastCandleTime("BTC-USD", 60)
	if err != nil {
		t.Fatalf("last candle time: %v", err)
	}
	if ts != 300 {
		t.Errorf("ts: got %d, want 300", ts)
	}

	// Other granularities do not leak in.
	ts, err = s.LastCandleTime("BTC-USD", 300)
	if err != nil {
		t.Fatalf("other granularity: %v", err)
	}
	if ts != 0 {
		t.Errorf("other granularity ts: got %d, want 0", ts)
	}
}

func TestFirstCandleTime(t *testing.T) {
	s := newTestStore(t)

	ts, err := s.FirstCandleTime("BTC-USD", 60)
	if err != nil {
		t.Fatalf("empty cache: %v", err)
	}
	if ts != 0 {
		t.Errorf("empty cache ts: got %d, want 0", ts)
	}

	if err := s.SaveCandles("BTC-USD", 60, []model.Candle{{Time: 300}, {Time: 240}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	ts, err = s.FirstCandleTime("BTC-USD", 60)
	if err != nil {
		t.Fatalf("first candle time: %v", err)
	}
	if ts != 240 {
		t.Errorf("ts: got %d, want 240", ts)
	}
}
