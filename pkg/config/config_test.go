package config

import (
	"os"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:            "8080",
		VenueWSURL:          "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		VenueRESTURL:        "https://clob.polymarket.com",
		WSEnabled:           true,
		WSPoolSize:          4,
		ScanInterval:        2 * time.Second,
		PollConcurrency:     8,
		FreshnessTTL:        2 * time.Second,
		MinProfitMargin:     0.02,
		MaxBankrollFraction: 0.05,
		MaxBetSize:          100.0,
		MinNotional:         5.0,
		ReservationTTL:      10 * time.Second,
		DetectorWorkers:     8,
		SubmissionWorkers:   16,
		MaxSlippageTicks:    5,
		CircuitBreakerMaxFailures: 5,
	}
}

func TestConfig_ValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected a valid config, got %v", err)
	}
}

func TestConfig_ValidateRejectsEmptyHTTPPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTPPort = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for empty HTTP_PORT")
	}
}

func TestConfig_ValidateRequiresWSURLWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.VenueWSURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when WS_ENABLED is true but VENUE_WS_URL is empty")
	}
}

func TestConfig_ValidateWSPoolSizeRange(t *testing.T) {
	tests := []struct {
		name     string
		poolSize int
		wantErr  bool
	}{
		{name: "zero rejected", poolSize: 0, wantErr: true},
		{name: "negative rejected", poolSize: -1, wantErr: true},
		{name: "one accepted", poolSize: 1, wantErr: false},
		{name: "twenty accepted", poolSize: 20, wantErr: false},
		{name: "twenty-one rejected", poolSize: 21, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.WSPoolSize = tt.poolSize
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected an error for pool size %d", tt.poolSize)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error for pool size %d, got %v", tt.poolSize, err)
			}
		})
	}
}

func TestConfig_ValidateMinNotionalMustNotExceedMaxBetSize(t *testing.T) {
	cfg := validConfig()
	cfg.MinNotional = 200.0
	cfg.MaxBetSize = 100.0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when MIN_NOTIONAL exceeds MAX_BET_SIZE")
	}
}

func TestConfig_ValidateProfitMarginMustBeFraction(t *testing.T) {
	cfg := validConfig()
	cfg.MinProfitMargin = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for MIN_PROFIT_MARGIN outside (0, 1)")
	}
}

func TestLoadFromEnv_WSPoolSizeDefault(t *testing.T) {
	os.Unsetenv("WS_POOL_SIZE")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.WSPoolSize != 4 {
		t.Errorf("expected default WSPoolSize to be 4, got %d", cfg.WSPoolSize)
	}
}

func TestLoadFromEnv_WSPoolSizeFromEnv(t *testing.T) {
	os.Setenv("WS_POOL_SIZE", "10")
	t.Cleanup(func() { os.Unsetenv("WS_POOL_SIZE") })

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.WSPoolSize != 10 {
		t.Errorf("expected WSPoolSize to be 10, got %d", cfg.WSPoolSize)
	}
}

func TestLoadFromEnv_InvalidEnvFallsBackToDefault(t *testing.T) {
	os.Setenv("SUBMISSION_WORKERS", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("SUBMISSION_WORKERS") })

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.SubmissionWorkers != 16 {
		t.Errorf("expected SubmissionWorkers to fall back to the default 16, got %d", cfg.SubmissionWorkers)
	}
}
