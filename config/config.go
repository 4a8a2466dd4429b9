package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptotracker/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data
	BinanceAPIURL    string
	BinanceStreamURL string
	QuoteAsset       string // pairs are filtered to this quote, e.g. USDT
	MaxSymbols       int    // cap on tracked pairs, by 24h volume

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Telegram
	TelegramBotToken     string
	TelegramTrendChatID  string
	TelegramVolumeChatID string
	TelegramRSIChatID    string

	// Enabled timeframes (comma-separated, e.g. "1m,15m,1h,4h")
	EnabledTFs string

	// Signal policy
	MinNormATR        float64
	RSIBullMax        float64
	RSIBearMin        float64
	ADXThreshold      float64
	VolumeSpikeFactor float64
	OversoldRSI       float64
	AlertCooldown     time.Duration
	RewardRatio       float64
	SLATRMultiple     float64

	// Pass cadences
	TrendInterval     time.Duration
	AlertInterval     time.Duration
	DigestInterval    time.Duration
	RetentionInterval time.Duration
	SymbolSyncEvery   time.Duration
}

// Load reads configuration from the environment, with a .env file applied
// first if one is present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		BinanceAPIURL:    getEnv("BINANCE_API_URL", ""),
		BinanceStreamURL: getEnv("BINANCE_STREAM_URL", ""),
		QuoteAsset:       getEnv("QUOTE_ASSET", "USDT"),
		MaxSymbols:       getEnvInt("MAX_SYMBOLS", 200),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/tracker.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramTrendChatID:  getEnv("TELEGRAM_TREND_CHAT_ID", ""),
		TelegramVolumeChatID: getEnv("TELEGRAM_VOLUME_CHAT_ID", ""),
		TelegramRSIChatID:    getEnv("TELEGRAM_RSI_CHAT_ID", ""),

		EnabledTFs: getEnv("ENABLED_TFS", "1m,15m,1h,4h"),

		MinNormATR:        getEnvFloat("MIN_NORM_ATR", 3.0),
		RSIBullMax:        getEnvFloat("RSI_BULL_MAX", 45),
		RSIBearMin:        getEnvFloat("RSI_BEAR_MIN", 55),
		ADXThreshold:      getEnvFloat("ADX_THRESHOLD", 25),
		VolumeSpikeFactor: getEnvFloat("VOLUME_SPIKE_FACTOR", 2.0),
		OversoldRSI:       getEnvFloat("OVERSOLD_RSI", 30),
		AlertCooldown:     getEnvDuration("ALERT_COOLDOWN", time.Hour),
		RewardRatio:       getEnvFloat("REWARD_RATIO", 1.0),
		SLATRMultiple:     getEnvFloat("SL_ATR_MULTIPLE", 1.5),

		TrendInterval:     getEnvDuration("TREND_INTERVAL", time.Minute),
		AlertInterval:     getEnvDuration("ALERT_INTERVAL", time.Minute),
		DigestInterval:    getEnvDuration("DIGEST_INTERVAL", time.Hour),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", 10*time.Minute),
		SymbolSyncEvery:   getEnvDuration("SYMBOL_SYNC_INTERVAL", 15*time.Minute),
	}
}

// ParseTFs parses the EnabledTFs string into timeframes, skipping values the
// system does not know.
func (c *Config) ParseTFs() []model.Timeframe {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			log.Printf("[config] skipping invalid timeframe: %q", p)
			continue
		}
		tfs = append(tfs, tf)
	}
	return tfs
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
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
