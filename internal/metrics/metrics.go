// Package metrics exposes Prometheus metrics and a health endpoint for
// the trading bot.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine and gateway.
type Metrics struct {
	TicksTotal   prometheus.Counter
	SkippedTicks prometheus.Counter
	FetchErrors  prometheus.Counter
	TickDur      prometheus.Histogram

	TradesTotal *prometheus.CounterVec // labels: side

	EngineRunning prometheus.Gauge
	WSClients     prometheus.Gauge

	SideEffectDrops  prometheus.Counter
	SideEffectErrors *prometheus.CounterVec // labels: kind

	CandleFetchDur prometheus.Histogram
}

// New registers and returns all metrics on the default registry.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_ticks_total",
			Help: "Total ticks processed by the engine",
		}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_skipped_ticks_total",
			Help: "Ticks skipped due to an in-flight price fetch",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_price_fetch_errors_total",
			Help: "Transient live price fetch failures",
		}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_tick_duration_seconds",
			Help:    "Tick processing latency",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_trades_total",
			Help: "Executed trades by side",
		}, []string{"side"}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_engine_running",
			Help: "Whether a session is running (0/1)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_ws_clients",
			Help: "Connected WebSocket observers",
		}),
		SideEffectDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_side_effect_drops_total",
			Help: "Side-effect requests dropped due to a full queue",
		}),
		SideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_side_effect_errors_total",
			Help: "Side-effect delivery failures by kind",
		}, []string{"kind"}),
		CandleFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_candle_fetch_duration_seconds",
			Help:    "Historical candle fetch latency (all pages)",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.SkippedTicks,
		m.FetchErrors,
		m.TickDur,
		m.TradesTotal,
		m.EngineRunning,
		m.WSClients,
		m.SideEffectDrops,
		m.SideEffectErrors,
		m.CandleFetchDur,
	)
	return m
}

// TickTimer returns a timer observing into the tick duration histogram.
func (m *Metrics) TickTimer() *prometheus.Timer {
	return prometheus.NewTimer(m.TickDur)
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	EngineRunning  bool      `json:"engine_running"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	StartedAt      time.Time `json:"started_at"`
	LastCheckAt    time.Time `json:"last_check_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetEngineRunning(v bool) {
	h.mu.Lock()
	h.EngineRunning = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	err := rdb.Ping(ctx).Err()
	h.mu.Lock()
	h.RedisConnected = err == nil
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	err := db.PingContext(ctx)
	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckSQLite(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "ok"
	code := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	out := struct {
		Status        string `json:"status"`
		Uptime        string `json:"uptime"`
		EngineRunning bool   `json:"engine_running"`
		Redis         bool   `json:"redis_connected"`
		SQLite        bool   `json:"sqlite_ok"`
		LastCheckAt   string `json:"last_check_at"`
	}{
		Status:        status,
		Uptime:        time.Since(h.StartedAt).Round(time.Second).String(),
		EngineRunning: h.EngineRunning,
		Redis:         h.RedisConnected,
		SQLite:        h.SQLiteOK,
		LastCheckAt:   h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(out)
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates the metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)
	return &Server{addr: addr, srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start launches the server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
