package bridgeconfig

import (
	"os"
	"testing"
)

func TestLoad_RequiresPostgresDSN(t *testing.T) {
	os.Unsetenv("BRIDGE_POSTGRES_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BRIDGE_POSTGRES_DSN is unset")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	os.Setenv("BRIDGE_POSTGRES_DSN", "postgres://localhost/db")
	defer os.Unsetenv("BRIDGE_POSTGRES_DSN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != 8085 {
		t.Errorf("expected default HTTPPort 8085, got %d", cfg.HTTPPort)
	}
	if cfg.BM25K1 != 1.5 || cfg.BM25B != 0.75 {
		t.Errorf("expected default BM25 params 1.5/0.75, got %f/%f", cfg.BM25K1, cfg.BM25B)
	}
	if cfg.RRFK != 60 {
		t.Errorf("expected default RRFK 60, got %d", cfg.RRFK)
	}
}

func TestLoad_RespectsEnvOverrides(t *testing.T) {
	os.Setenv("BRIDGE_POSTGRES_DSN", "postgres://localhost/db")
	os.Setenv("BRIDGE_HTTP_PORT", "9999")
	defer os.Unsetenv("BRIDGE_POSTGRES_DSN")
	defer os.Unsetenv("BRIDGE_HTTP_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != 9999 {
		t.Errorf("expected overridden HTTPPort 9999, got %d", cfg.HTTPPort)
	}
}
