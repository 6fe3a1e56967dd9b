package config

import (
	"os"
	"testing"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	_, err := Load()
	if err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/medagenda_test")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("expected default DB_MAX_CONNS 20, got %d", cfg.DBMaxConns)
	}
	if cfg.Timezone != "America/Sao_Paulo" {
		t.Errorf("unexpected default timezone %s", cfg.Timezone)
	}
	if !cfg.IsDev() {
		t.Error("expected default ENV to be development")
	}
}

func TestValidate_ProductionRequiresIssuer(t *testing.T) {
	cfg := &Config{Env: "production", MaxUploadBytes: 1024}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for production config without AUTH_ISSUER")
	}

	cfg.AuthIssuer = "https://auth.example.com/realms/school"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DevNeedsNoIssuer(t *testing.T) {
	cfg := &Config{Env: "development", MaxUploadBytes: 1024}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsBadLimits(t *testing.T) {
	cfg := &Config{Env: "development", MaxUploadBytes: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero MAX_UPLOAD_BYTES")
	}

	cfg = &Config{Env: "development", MaxUploadBytes: 1024, RateLimitRPS: -1}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative RATE_LIMIT_RPS")
	}
}
