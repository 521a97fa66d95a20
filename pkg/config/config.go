package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the typed configuration snapshot the engine is started from.
// Fields map directly onto the enumerated option set consumed by the core, plus
// the ambient fields needed to stand the process up (logging, HTTP, storage,
// venue endpoints, wallet address).
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Venue endpoints
	VenueWSURL       string
	VenueRESTURL     string
	VenueAPIKey      string
	VenueAPISecret   string
	VenuePassphrase  string
	WalletAddress    string

	// C2 Market Registry / discovery collaborator
	Assets              []string
	Durations           []string
	DiscoveryPollInterval time.Duration
	MarketSweepInterval   time.Duration

	// C3/C4 Feed Ingestor
	WSEnabled               bool
	ScanInterval            time.Duration
	PollConcurrency         int
	FreshnessTTL            time.Duration
	WSPingInterval          time.Duration
	WSIdleTimeout           time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSPoolSize              int

	// C5 Opportunity Detector
	MinProfitMargin float64
	MinSize         float64
	FeeReserveBPS   int
	DetectorWorkers int

	// C6 Risk Gate
	MaxBetSize          float64
	MaxBankrollFraction float64
	MinNotional         float64
	ReservationTTL      time.Duration

	// C7 Execution Engine
	DryRun            bool
	MaxImbalanceMs    time.Duration
	MaxSlippageTicks  int
	SubmitTimeout     time.Duration
	AckTimeout        time.Duration
	HedgeTimeout      time.Duration
	SubmissionWorkers int

	// Circuit breaker (process-level failure tripwire)
	CircuitBreakerMaxFailures int
	CircuitBreakerWindow      time.Duration
	CircuitBreakerCooldown    time.Duration

	// Storage / observability sink
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults,
// optionally seeded from a .env file in the working directory.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		VenueWSURL:      getEnvOrDefault("VENUE_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		VenueRESTURL:    getEnvOrDefault("VENUE_REST_URL", "https://clob.polymarket.com"),
		VenueAPIKey:     os.Getenv("VENUE_API_KEY"),
		VenueAPISecret:  os.Getenv("VENUE_API_SECRET"),
		VenuePassphrase: os.Getenv("VENUE_PASSPHRASE"),
		WalletAddress:   os.Getenv("WALLET_ADDRESS"),

		Assets:                getListOrDefault("ARB_ASSETS", nil),
		Durations:             getListOrDefault("ARB_DURATIONS", nil),
		DiscoveryPollInterval: getDurationOrDefault("DISCOVERY_POLL_INTERVAL", 30*time.Second),
		MarketSweepInterval:   getDurationOrDefault("MARKET_SWEEP_INTERVAL", 10*time.Second),

		WSEnabled:               getBoolOrDefault("WS_ENABLED", true),
		ScanInterval:            getDurationOrDefault("SCAN_INTERVAL", 2*time.Second),
		PollConcurrency:         getIntOrDefault("POLL_CONCURRENCY", 8),
		FreshnessTTL:            getDurationOrDefault("FRESHNESS_TTL", 2*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 20*time.Second),
		WSIdleTimeout:           getDurationOrDefault("WS_IDLE_TIMEOUT", 45*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 500*time.Millisecond),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSPoolSize:              getIntOrDefault("WS_POOL_SIZE", 4),

		MinProfitMargin: getFloat64OrDefault("MIN_PROFIT_MARGIN", 0.02),
		MinSize:         getFloat64OrDefault("MIN_SIZE", 5.0),
		FeeReserveBPS:   getIntOrDefault("FEE_RESERVE_BPS", 100),
		DetectorWorkers: getIntOrDefault("DETECTOR_WORKERS", 8),

		MaxBetSize:          getFloat64OrDefault("MAX_BET_SIZE", 100.0),
		MaxBankrollFraction: getFloat64OrDefault("MAX_BANKROLL_FRACTION", 0.05),
		MinNotional:         getFloat64OrDefault("MIN_NOTIONAL", 5.0),
		ReservationTTL:      getDurationOrDefault("RESERVATION_TTL", 10*time.Second),

		DryRun:            getBoolOrDefault("DRY_RUN", true),
		MaxImbalanceMs:    getDurationOrDefault("MAX_IMBALANCE_MS", 1500*time.Millisecond),
		MaxSlippageTicks:  getIntOrDefault("MAX_SLIPPAGE_TICKS", 5),
		SubmitTimeout:     getDurationOrDefault("SUBMIT_TIMEOUT", 2*time.Second),
		AckTimeout:        getDurationOrDefault("ACK_TIMEOUT", 2*time.Second),
		HedgeTimeout:      getDurationOrDefault("HEDGE_TIMEOUT", 1*time.Second),
		SubmissionWorkers: getIntOrDefault("SUBMISSION_WORKERS", 16),

		CircuitBreakerMaxFailures: getIntOrDefault("CIRCUIT_BREAKER_MAX_FAILURES", 5),
		CircuitBreakerWindow:      getDurationOrDefault("CIRCUIT_BREAKER_WINDOW", 60*time.Second),
		CircuitBreakerCooldown:    getDurationOrDefault("CIRCUIT_BREAKER_COOLDOWN", 30*time.Second),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polymarket_arb"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are internally consistent.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}
	if c.WSEnabled && c.VenueWSURL == "" {
		return errors.New("VENUE_WS_URL cannot be empty when WS_ENABLED is true")
	}
	if c.VenueRESTURL == "" {
		return errors.New("VENUE_REST_URL cannot be empty")
	}
	if c.MinProfitMargin <= 0 || c.MinProfitMargin >= 1.0 {
		return fmt.Errorf("MIN_PROFIT_MARGIN must be in (0, 1), got %f", c.MinProfitMargin)
	}
	if c.MaxBankrollFraction <= 0 || c.MaxBankrollFraction > 1.0 {
		return fmt.Errorf("MAX_BANKROLL_FRACTION must be in (0, 1], got %f", c.MaxBankrollFraction)
	}
	if c.MaxBetSize <= 0 {
		return fmt.Errorf("MAX_BET_SIZE must be positive, got %f", c.MaxBetSize)
	}
	if c.MinNotional <= 0 {
		return fmt.Errorf("MIN_NOTIONAL must be positive, got %f", c.MinNotional)
	}
	if c.MinNotional > c.MaxBetSize {
		return fmt.Errorf("MIN_NOTIONAL (%f) must be <= MAX_BET_SIZE (%f)", c.MinNotional, c.MaxBetSize)
	}
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive, got %s", c.ReservationTTL)
	}
	if c.FreshnessTTL <= 0 {
		return fmt.Errorf("FRESHNESS_TTL must be positive, got %s", c.FreshnessTTL)
	}
	if c.PollConcurrency < 1 {
		return fmt.Errorf("POLL_CONCURRENCY must be at least 1, got %d", c.PollConcurrency)
	}
	if c.WSEnabled && c.WSPoolSize < 1 {
		return fmt.Errorf("WS_POOL_SIZE must be at least 1, got %d", c.WSPoolSize)
	}
	if c.WSPoolSize > 20 {
		return fmt.Errorf("WS_POOL_SIZE must not exceed 20, got %d", c.WSPoolSize)
	}
	if c.SubmissionWorkers < 1 {
		return fmt.Errorf("SUBMISSION_WORKERS must be at least 1, got %d", c.SubmissionWorkers)
	}
	if c.DetectorWorkers < 1 {
		return fmt.Errorf("DETECTOR_WORKERS must be at least 1, got %d", c.DetectorWorkers)
	}
	if c.MaxSlippageTicks < 0 {
		return fmt.Errorf("MAX_SLIPPAGE_TICKS must be non-negative, got %d", c.MaxSlippageTicks)
	}
	if c.CircuitBreakerMaxFailures < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_MAX_FAILURES must be at least 1, got %d", c.CircuitBreakerMaxFailures)
	}
	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				out = append(out, value[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}
