package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MEDGRID_ADDR", "")
	t.Setenv("MEDGRID_RATE_LIMIT_RPS", "")
	t.Setenv("MEDGRID_RATE_LIMIT_BURST", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.RateLimitRPS != 50 {
		t.Fatalf("unexpected rps: %v", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 100 {
		t.Fatalf("unexpected burst: %d", cfg.RateLimitBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MEDGRID_ADDR", ":9090")
	t.Setenv("MEDGRID_RATE_LIMIT_RPS", "12.5")
	t.Setenv("MEDGRID_RATE_LIMIT_BURST", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.RateLimitRPS != 12.5 {
		t.Fatalf("unexpected rps: %v", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 25 {
		t.Fatalf("unexpected burst: %d", cfg.RateLimitBurst)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("MEDGRID_RATE_LIMIT_RPS", "fast")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid rps")
	}

	t.Setenv("MEDGRID_RATE_LIMIT_RPS", "")
	t.Setenv("MEDGRID_RATE_LIMIT_BURST", "many")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid burst")
	}
}
