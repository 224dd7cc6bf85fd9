package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cryptobot/internal/model"
	"cryptobot/internal/session"
)

type stubJournal struct {
	trades []model.Trade
	err    error
}

func (j *stubJournal) RecordTrade(pair string, t model.Trade) error { return nil }
func (j *stubJournal) RecentTrades(limit int) ([]model.Trade, error) {
	if j.err != nil {
		return nil, j.err
	}
	if limit > len(j.trades) {
		limit = len(j.trades)
	}
	return j.trades[:limit], nil
}

type stubCandles struct {
	candles []model.Candle
	gotPair string
	gotGran int
}

func (c *stubCandles) Candles(ctx context.Context, pair string, start, end time.Time, granularity int) ([]model.Candle, error) {
	c.gotPair = pair
	c.gotGran = granularity
	return c.candles, nil
}

func newTestServer(t *testing.T, journal model.TradeJournal, candles CandleProvider) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewRouter(session.New(session.Config{}), journal, candles, "BTC-USD").Mount(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	var body struct {
		Status    string `json:"status"`
		IsRunning bool   `json:"isRunning"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if body.Status != "ok" || body.IsRunning {
		t.Errorf("body: got %+v", body)
	}
}

func TestState(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	var snap model.Snapshot
	resp := getJSON(t, srv.URL+"/api/v1/state", &snap)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if snap.IsRunning {
		t.Error("idle session must report not running")
	}
}

func TestTrades(t *testing.T) {
	journal := &stubJournal{trades: []model.Trade{
		{ID: 2, Type: model.SideSell, Price: 110},
		{ID: 1, Type: model.SideBuy, Price: 100},
	}}
	srv := newTestServer(t, journal, nil)

	var trades []model.Trade
	getJSON(t, srv.URL+"/api/v1/trades?limit=1", &trades)
	if len(trades) != 1 || trades[0].ID != 2 {
		t.Errorf("trades: got %+v", trades)
	}

	resp := getJSON(t, srv.URL+"/api/v1/trades?limit=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: got %d, want 400", resp.StatusCode)
	}
}

func TestTradesJournalFailure(t *testing.T) {
	srv := newTestServer(t, &stubJournal{err: errors.New("disk gone")}, nil)
	resp := getJSON(t, srv.URL+"/api/v1/trades", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestTradesNotConfigured(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp := getJSON(t, srv.URL+"/api/v1/trades", nil)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", resp.StatusCode)
	}
}

func TestCandles(t *testing.T) {
	provider := &stubCandles{candles: []model.Candle{{Time: 60, Close: 1}}}
	srv := newTestServer(t, nil, provider)

	var candles []model.Candle
	getJSON(t, srv.URL+"/api/v1/candles?pair=ETH-USD&granularity=300&start=0&end=3600", &candles)
	if len(candles) != 1 {
		t.Fatalf("candles: got %d, want 1", len(candles))
	}
	if provider.gotPair != "ETH-USD" || provider.gotGran != 300 {
		t.Errorf("forwarded params: pair=%s gran=%d", provider.gotPair, provider.gotGran)
	}

	// Default pair kicks in when none is given.
	getJSON(t, srv.URL+"/api/v1/candles?start=0&end=3600", &candles)
	if provider.gotPair != "BTC-USD" {
		t.Errorf("default pair: got %s", provider.gotPair)
	}

	resp := getJSON(t, srv.URL+"/api/v1/candles?start=100&end=100", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty range: got %d, want 400", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp, err := http.Post(srv.URL+"/api/v1/state", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}
