package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Servers
	HTTPAddr    string
	MetricsAddr string

	// History source
	CoinGeckoBaseURL  string
	CoinID            string
	VSCurrency        string
	HistoryDays       int
	RequestsPerMinute int
	RefreshInterval   time.Duration
	EvalInterval      time.Duration

	// Live feed
	BinanceWSURL  string
	BinanceStream string
	LiveFeed      bool

	// Infrastructure
	SQLitePath    string
	RedisAddr     string // empty disables Redis
	RedisPassword string
	RedisPrefix   string

	// Alerts
	TelegramBotToken        string
	TelegramChatID          string
	AlertWebhookURL         string
	FirebaseCredentialsPath string
	FCMTopic                string
	AlertsPerMinute         int

	// Operator actions
	OperatorTOTPSecret string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	vs := strings.ToLower(getEnv("VS_CURRENCY", "usd"))
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		CoinGeckoBaseURL:  getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
		CoinID:            getEnv("COIN_ID", "ripple"),
		VSCurrency:        vs,
		HistoryDays:       getEnvInt("HISTORY_DAYS", 30),
		RequestsPerMinute: getEnvInt("COINGECKO_RPM", 10),
		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", 5*time.Minute),
		EvalInterval:      getEnvDuration("EVAL_INTERVAL", 15*time.Second),

		BinanceWSURL:  getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/ws"),
		BinanceStream: getEnv("BINANCE_STREAM", "xrpusdt@trade"),
		// USDT quotes only track a USD series.
		LiveFeed: getEnvBool("LIVE_FEED", vs == "usd"),

		SQLitePath:    getEnv("SQLITE_PATH", "data/xrp.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisPrefix:   getEnv("REDIS_PREFIX", "xrp:"),

		TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:          getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:         getEnv("ALERT_WEBHOOK_URL", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FCMTopic:                getEnv("FCM_TOPIC", "xrp-alerts"),
		AlertsPerMinute:         getEnvInt("ALERTS_PER_MINUTE", 20),

		OperatorTOTPSecret: getEnv("OPERATOR_TOTP_SECRET", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// ValidDays reports whether d is one of the supported history ranges.
func ValidDays(d int) bool {
	switch d {
	case 1, 7, 30, 90, 180, 365:
		return true
	}
	return false
}

// ValidCurrency reports whether vs is a supported quote currency.
func ValidCurrency(vs string) bool {
	switch vs {
	case "usd", "eur", "uah", "btc":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
