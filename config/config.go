// Package config loads all application configuration from environment
// variables.
package config

import (
	"os"
	"strings"
)

// Config holds everything the daemon needs at startup.
type Config struct {
	// Servers
	ListenAddr  string // REST + WebSocket
	MetricsAddr string // /metrics and /healthz

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// Exchange API. Key, secret and passphrase are only required for
	// live order placement; market data works without them.
	ExchangeURL        string
	ExchangeKey        string
	ExchangeSecret     string
	ExchangePassphrase string

	// Notifications
	TelegramBotToken string
	TelegramChatIDs  []string
	WebhookURL       string

	// Optional TOTP guard on mutating WebSocket control messages.
	TOTPSecret string

	DefaultPair string
	LogLevel    string
}

// Load reads configuration from the environment with defaults for local
// development.
func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("TRADEBOT_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/tradebot.db"),

		ExchangeURL:        getEnv("EXCHANGE_URL", ""),
		ExchangeKey:        getEnv("EXCHANGE_KEY", ""),
		ExchangeSecret:     getEnv("EXCHANGE_SECRET", ""),
		ExchangePassphrase: getEnv("EXCHANGE_PASSPHRASE", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:  splitList(getEnv("TELEGRAM_CHAT_IDS", "")),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		TOTPSecret: getEnv("TRADEBOT_TOTP_SECRET", ""),

		DefaultPair: getEnv("DEFAULT_PAIR", "BTC-USD"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// HasExchangeCredentials reports whether signed endpoints can be used.
func (c *Config) HasExchangeCredentials() bool {
	return c.ExchangeKey != "" && c.ExchangeSecret != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
