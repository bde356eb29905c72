package config

import "testing"

func setRequiredServerEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/ore?sslmode=disable")
	t.Setenv("WALLET_PASSPHRASE", "correct horse")
}

func TestLoadServerDefaults(t *testing.T) {
	setRequiredServerEnv(t)

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.ClaimFeePercent != 10 {
		t.Fatalf("ClaimFeePercent = %d, want 10", cfg.ClaimFeePercent)
	}
	if cfg.ReadyMinLamports != 10_000_000 {
		t.Fatalf("ReadyMinLamports = %d, want 10000000", cfg.ReadyMinLamports)
	}
	if !cfg.ResumeOnStartup {
		t.Fatal("ResumeOnStartup = false, want true")
	}
}

func TestLoadServerRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("WALLET_PASSPHRASE", "x")

	_, err := LoadServer()
	if err == nil {
		t.Fatal("LoadServer() expected error, got nil")
	}
}

func TestLoadServerRequiresWalletPassphrase(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/ore?sslmode=disable")
	t.Setenv("WALLET_PASSPHRASE", "")

	_, err := LoadServer()
	if err == nil {
		t.Fatal("LoadServer() expected error, got nil")
	}
}

func TestLoadServerParseTypes(t *testing.T) {
	setRequiredServerEnv(t)
	t.Setenv("EVENT_BUFFER_SIZE", "64")
	t.Setenv("ALERT_PUSH_ENABLED", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.EventBufferSize != 64 {
		t.Fatalf("EventBufferSize = %d, want 64", cfg.EventBufferSize)
	}
	if !cfg.AlertPushEnabled {
		t.Fatal("AlertPushEnabled = false, want true")
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("RedisURL = %q", cfg.RedisURL)
	}
}
