package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnsureDSNPrefersExplicit(t *testing.T) {
	cfg := DBConfig{DSN: "postgres://app:secret@db:5432/meraki"}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DSN != "postgres://app:secret@db:5432/meraki" {
		t.Fatalf("dsn mutated: %s", cfg.DSN)
	}
}

func TestEnsureDSNFromLegacyParts(t *testing.T) {
	cfg := DBConfig{
		LegacyHost:     "localhost",
		LegacyPort:     5432,
		LegacyUser:     "meraki",
		LegacyPassword: "p@ss word",
		LegacyName:     "storefront",
		LegacySSLMode:  "disable",
	}
	if err := cfg.ensureDSN(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(cfg.DSN, "postgres://meraki:") {
		t.Fatalf("unexpected dsn: %s", cfg.DSN)
	}
	if !strings.Contains(cfg.DSN, "sslmode=disable") {
		t.Fatalf("expected sslmode in dsn: %s", cfg.DSN)
	}
}

func TestEnsureDSNMissingParts(t *testing.T) {
	cfg := DBConfig{LegacyHost: "localhost"}
	err := cfg.ensureDSN()
	if err == nil {
		t.Fatal("expected error for missing legacy values")
	}
	if !strings.Contains(err.Error(), EnvDBUser) {
		t.Fatalf("expected missing env names in error, got: %v", err)
	}
}

func TestRefreshTokenTTLFallsBackWhenUnset(t *testing.T) {
	cfg := JWTConfig{RefreshTokenTTLMinutes: 0}
	if got := cfg.RefreshTokenTTL(); got <= 0 {
		t.Fatalf("expected positive fallback ttl, got %v", got)
	}

	cfg.RefreshTokenTTLMinutes = 90
	if got := cfg.RefreshTokenTTL(); got != 90*time.Minute {
		t.Fatalf("expected 90m, got %v", got)
	}
}
