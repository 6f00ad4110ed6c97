package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config groups the runtime settings shared by the payvault binaries. Values
// come from PAYVAULT_* environment variables with sensible defaults; an empty
// DatabaseURL selects the in-memory ledger.
type Config struct {
	Addr        string
	DatabaseURL string
	LogLevel    string

	RatePerSec float64
	RateBurst  int

	// Keeper and client tooling.
	APIURL       string
	PollInterval time.Duration
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("payvault")
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_per_sec", 50.0)
	v.SetDefault("rate_burst", 100)
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("poll_interval", "15s")

	cfg := Config{
		Addr:         v.GetString("addr"),
		DatabaseURL:  v.GetString("database_url"),
		LogLevel:     v.GetString("log_level"),
		RatePerSec:   v.GetFloat64("rate_per_sec"),
		RateBurst:    v.GetInt("rate_burst"),
		APIURL:       v.GetString("api_url"),
		PollInterval: v.GetDuration("poll_interval"),
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return cfg, nil
}
