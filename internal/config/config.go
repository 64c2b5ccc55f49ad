// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the API process needs at startup.
type Config struct {
	Addr            string        // listen address for the HTTP server
	PGDSN           string        // Postgres DSN; empty disables the store (readyz degrades)
	AuthSecret      string        // shared HMAC secret for token verification
	RateLimitRPS    float64       // sustained requests per second per process
	RateLimitBurst  int           // burst allowance on top of the sustained rate
	MaxBodyBytes    int64         // request body cap for JSON endpoints
	ImportBodyBytes int64         // request body cap for CSV import
	ShutdownTimeout time.Duration // grace period for in-flight requests on shutdown
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            envStr("MEDGRID_ADDR", ":8080"),
		PGDSN:           os.Getenv("MEDGRID_PG_DSN"),
		AuthSecret:      os.Getenv("MEDGRID_AUTH_SECRET"),
		MaxBodyBytes:    1 << 20,
		ImportBodyBytes: 8 << 20,
		ShutdownTimeout: 10 * time.Second,
	}

	rps, err := envFloat("MEDGRID_RATE_LIMIT_RPS", 50)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitRPS = rps

	burst, err := envInt("MEDGRID_RATE_LIMIT_BURST", 100)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitBurst = burst

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for %s: %q", key, v)
	}
	return f, nil
}
