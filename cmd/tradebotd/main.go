// Command tradebotd runs the trading bot daemon: one trading session
// exposed over WebSocket and REST, with Prometheus metrics, a SQLite
// trade journal and candle cache, and a Redis snapshot cache.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptobot/config"
	"cryptobot/internal/api"
	"cryptobot/internal/gateway"
	"cryptobot/internal/logger"
	"cryptobot/internal/marketdata/candles"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/notification"
	"cryptobot/internal/session"
	"cryptobot/internal/sidefx"
	redisstore "cryptobot/internal/store/redis"
	"cryptobot/internal/store/sqlite"
	"cryptobot/pkg/exchange"
)

const sideEffectQueueSize = 64

func main() {
	cfg := config.Load()
	logger.Init("tradebotd", cfg.LogLevel)
	slog.Info("starting", "listen", cfg.ListenAddr, "metrics", cfg.MetricsAddr, "pair", cfg.DefaultPair)

	m := metrics.New()
	health := metrics.NewHealthStatus()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Storage. Both are optional: the bot degrades to in-memory state.
	var journal model.TradeJournal
	var store *sqlite.Store
	if s, err := sqlite.New(cfg.SQLitePath); err != nil {
		log.Printf("[main] sqlite unavailable, journal disabled: %v", err)
	} else {
		store = s
		journal = s
		defer s.Close()
	}

	var snapCache model.SnapshotCache
	var settingsStore model.SettingsStore
	var redisCache *redisstore.Cache
	if c, err := redisstore.New(redisstore.CacheConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}); err != nil {
		log.Printf("[main] redis unavailable, snapshot cache disabled: %v", err)
	} else {
		redisCache = c
		snapCache = c
		settingsStore = c
		defer c.Close()
	}

	// Exchange client serves market data always; orders only with
	// credentials.
	exch := exchange.New(exchange.Config{
		BaseURL:    cfg.ExchangeURL,
		Key:        cfg.ExchangeKey,
		Secret:     cfg.ExchangeSecret,
		Passphrase: cfg.ExchangePassphrase,
	})
	var orders model.OrderPlacer
	if cfg.HasExchangeCredentials() {
		orders = exch
	} else {
		log.Printf("[main] no exchange credentials, live order placement disabled")
	}

	// Notification fan-out.
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && len(cfg.TelegramChatIDs) > 0 {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatIDs))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}

	worker := sidefx.NewWorker(sideEffectQueueSize, notifiers, orders, journal, m)
	go worker.Run(ctx)

	sess := session.New(session.Config{
		Prices:        exch,
		Effects:       worker,
		Metrics:       m,
		SnapshotCache: snapCache,
		SettingsStore: settingsStore,
	})
	go sess.Run(ctx)

	// Dependency probes for /healthz.
	var rdb = redisCacheClient(redisCache)
	var db = storeDB(store)
	health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.SetEngineRunning(sess.Running())
			}
		}
	}()

	metricsServer := metrics.NewServer(cfg.MetricsAddr, health)
	metricsServer.Start()

	// Main server: REST + WebSocket.
	mux := http.NewServeMux()
	candleProvider := buildCandleProvider(store, exch, m)
	api.NewRouter(sess, journal, candleProvider, cfg.DefaultPair).Mount(mux)

	gw := gateway.New(sess, m, cfg.TOTPSecret)
	mux.HandleFunc("/ws", gw.HandleWS)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("[main] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[main] server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	sess.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsServer.Stop(shutdownCtx)
	slog.Info("bye")
	os.Exit(0)
}

// buildCandleProvider prefers the read-through cache; without SQLite the
// exchange serves candles directly.
func buildCandleProvider(store *sqlite.Store, exch *exchange.Client, m *metrics.Metrics) api.CandleProvider {
	if store == nil {
		return exch
	}
	return candles.New(store, exch, m)
}

func redisCacheClient(c *redisstore.Cache) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Client()
}

func storeDB(s *sqlite.Store) *sql.DB {
	if s == nil {
		return nil
	}
	return s.DB()
}
