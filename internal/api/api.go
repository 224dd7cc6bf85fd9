// Package api serves the REST surface: health, current state, the trade
// journal and historical candles. The WebSocket endpoint is mounted
// alongside these routes by the caller.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"cryptobot/internal/model"
	"cryptobot/internal/session"
)

// CandleProvider returns OHLC candles for a pair and time range.
type CandleProvider interface {
	Candles(ctx context.Context, pair string, start, end time.Time, granularity int) ([]model.Candle, error)
}

// Router builds the REST handler tree.
type Router struct {
	session *session.Session
	journal model.TradeJournal // may be nil
	candles CandleProvider     // may be nil
	pair    string             // default pair for the candles endpoint
}

// NewRouter creates the REST router.
func NewRouter(s *session.Session, journal model.TradeJournal, candles CandleProvider, defaultPair string) *Router {
	return &Router{session: s, journal: journal, candles: candles, pair: defaultPair}
}

// Mount registers all REST routes on mux.
func (rt *Router) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", rt.withCORS(rt.handleHealth))
	mux.HandleFunc("/api/v1/state", rt.withCORS(rt.handleState))
	mux.HandleFunc("/api/v1/trades", rt.withCORS(rt.handleTrades))
	mux.HandleFunc("/api/v1/candles", rt.withCORS(rt.handleCandles))
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"isRunning": rt.session.Running(),
	})
}

func (rt *Router) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, rt.session.GetSnapshot(r.Context()))
}

func (rt *Router) handleTrades(w http.ResponseWriter, r *http.Request) {
	if rt.journal == nil {
		http.Error(w, `{"error":"trade journal not configured"}`, http.StatusNotImplemented)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	trades, err := rt.journal.RecentTrades(limit)
	if err != nil {
		log.Printf("[api] trades query failed: %v", err)
		http.Error(w, `{"error":"journal unavailable"}`, http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, trades)
}

func (rt *Router) handleCandles(w http.ResponseWriter, r *http.Request) {
	if rt.candles == nil {
		http.Error(w, `{"error":"candle source not configured"}`, http.StatusNotImplemented)
		return
	}
	q := r.URL.Query()

	pair := q.Get("pair")
	if pair == "" {
		pair = rt.pair
	}
	granularity := 60
	if v := q.Get("granularity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"granularity must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		granularity = n
	}

	end := time.Now().UTC()
	if v := q.Get("end"); v != "" {
		ts, err := parseTime(v)
		if err != nil {
			http.Error(w, `{"error":"bad end time"}`, http.StatusBadRequest)
			return
		}
		end = ts
	}
	start := end.Add(-6 * time.Hour)
	if v := q.Get("start"); v != "" {
		ts, err := parseTime(v)
		if err != nil {
			http.Error(w, `{"error":"bad start time"}`, http.StatusBadRequest)
			return
		}
		start = ts
	}
	if !start.Before(end) {
		http.Error(w, `{"error":"start must precede end"}`, http.StatusBadRequest)
		return
	}

	candles, err := rt.candles.Candles(r.Context(), pair, start, end, granularity)
	if err != nil {
		log.Printf("[api] candles query failed: %v", err)
		http.Error(w, `{"error":"candle source unavailable"}`, http.StatusBadGateway)
		return
	}
	if candles == nil {
		candles = []model.Candle{}
	}
	writeJSON(w, candles)
}

// parseTime accepts epoch seconds or RFC3339.
func parseTime(v string) (time.Time, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (rt *Router) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
