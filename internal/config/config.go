package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the maker engine
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// SX.bet API
	SXAPIURL string
	SXWSURL  string

	// Wallet
	PrivateKey      string
	ExecutorAddress string

	// Base token used for stakes (USDC by default)
	BaseToken         string
	BaseTokenDecimals int32
	ChainID           int64

	// Engine timing
	TickInterval    time.Duration
	PostCooldown    time.Duration
	RequestTimeout  time.Duration
	OrderRetryDelay time.Duration
	OrderRetries    int

	// Order-book retention for inactive entries
	BookRetention time.Duration

	// Defaults applied to new positions when the start message omits them
	DefaultEdge         decimal.Decimal
	DefaultMaxVig       decimal.Decimal
	DefaultMinOrderSize decimal.Decimal

	// Journal database (sqlite path or postgres:// DSN)
	DatabasePath string

	// Optional Telegram status notifier
	TelegramToken  string
	TelegramChatID int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", false),
		Debug:  getEnvBool("DEBUG", false),

		SXAPIURL: getEnv("SX_API_URL", "https://api.sx.bet"),
		SXWSURL:  getEnv("SX_WS_URL", "wss://api.sx.bet/ws"),

		PrivateKey:      os.Getenv("PRIVATE_KEY"),
		ExecutorAddress: os.Getenv("EXECUTOR_ADDRESS"),

		BaseToken:         os.Getenv("BASE_TOKEN"),
		BaseTokenDecimals: int32(getEnvInt("BASE_TOKEN_DECIMALS", 6)),
		ChainID:           int64(getEnvInt("CHAIN_ID", 4162)),

		TickInterval:    getEnvDuration("TICK_INTERVAL", 3500*time.Millisecond),
		PostCooldown:    getEnvDuration("POST_COOLDOWN", 5*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		OrderRetryDelay: getEnvDuration("ORDER_RETRY_DELAY", 2*time.Second),
		OrderRetries:    getEnvInt("ORDER_RETRIES", 3),

		BookRetention: getEnvDuration("BOOK_RETENTION", 10*time.Minute),

		DefaultEdge:         getEnvDecimal("DEFAULT_EDGE", decimal.NewFromFloat(2)),
		DefaultMaxVig:       getEnvDecimal("DEFAULT_MAX_VIG", decimal.NewFromFloat(0.05)),
		DefaultMinOrderSize: getEnvDecimal("DEFAULT_MIN_ORDER_SIZE", decimal.NewFromFloat(10)),

		DatabasePath: getEnv("DATABASE_PATH", "data/icebot.db"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Validate required fields
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("PRIVATE_KEY is required")
	}
	if cfg.BaseToken == "" {
		return nil, fmt.Errorf("BASE_TOKEN is required")
	}
	if cfg.ExecutorAddress == "" {
		return nil, fmt.Errorf("EXECUTOR_ADDRESS is required")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
