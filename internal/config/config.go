package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Solver identity and keys
	SolverWallet      string
	EncryptionKeySeed string

	// Settlement loop
	PollInterval      time.Duration
	MaxSlippageBps    int
	MaxPriceImpactPct string
	QuoteRetries      int
	RetryBackoff      time.Duration
	ProcessedMaxAge   time.Duration

	// Router settings
	JupiterBaseURL string
	JupiterAPIKey  string

	// Reputation oracle
	OracleBaseURL string
	OracleAPIKey  string
	OraclePubkey  string

	// Redis settings
	RedisAddr string
	RedisDB   int

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP API
	APIAddr    string
	APIKey     string
	APIDevMode bool
}

func Load() *Config {
	return &Config{
		SolverWallet:      getEnv("SOLVER_WALLET", ""),
		EncryptionKeySeed: getEnv("ENCRYPTION_KEY_SEED", ""),

		PollInterval:      getDurationEnv("POLL_INTERVAL", 2*time.Second),
		MaxSlippageBps:    getIntEnv("MAX_SLIPPAGE_BPS", 100),
		MaxPriceImpactPct: getEnv("MAX_PRICE_IMPACT_PCT", "1.0"),
		QuoteRetries:      getIntEnv("QUOTE_RETRIES", 2),
		RetryBackoff:      getDurationEnv("RETRY_BACKOFF", 500*time.Millisecond),
		ProcessedMaxAge:   getDurationEnv("PROCESSED_MAX_AGE", 5*time.Minute),

		JupiterBaseURL: getEnv("JUPITER_BASE_URL", "https://api.jup.ag/swap/v1"),
		JupiterAPIKey:  getEnv("JUPITER_API_KEY", ""),

		OracleBaseURL: getEnv("ORACLE_BASE_URL", ""),
		OracleAPIKey:  getEnv("ORACLE_API_KEY", ""),
		OraclePubkey:  getEnv("ORACLE_PUBKEY", ""),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getIntEnv("REDIS_DB", 0),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "settlement"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		APIAddr:    getEnv("API_ADDR", ":8090"),
		APIKey:     getEnv("API_KEY", ""),
		APIDevMode: getBoolEnv("API_DEV_MODE", false),
	}
}

// Validate rejects configurations the solver cannot safely start with.
func (c *Config) Validate() error {
	if c.MaxSlippageBps < 0 || c.MaxSlippageBps > 10000 {
		return fmt.Errorf("MAX_SLIPPAGE_BPS must be in [0, 10000], got %d", c.MaxSlippageBps)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.QuoteRetries < 0 {
		return fmt.Errorf("QUOTE_RETRIES must not be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
