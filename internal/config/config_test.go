package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MASTER_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected port 3000, got %d", cfg.Port)
	}
	if cfg.QRTTL != time.Minute {
		t.Fatalf("expected 60s qr ttl, got %s", cfg.QRTTL)
	}
	if cfg.InitTimeout != time.Minute {
		t.Fatalf("expected 60s init timeout, got %s", cfg.InitTimeout)
	}
	if cfg.JanitorInterval != 5*time.Minute {
		t.Fatalf("expected 5m janitor interval, got %s", cfg.JanitorInterval)
	}
	if cfg.SimulateScanEnabled {
		t.Fatalf("simulate scan must default to disabled")
	}
	if cfg.SessionBackend != BackendLocal {
		t.Fatalf("expected local backend, got %s", cfg.SessionBackend)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("MASTER_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing MASTER_SECRET")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MASTER_SECRET", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("QR_TTL", "45s")
	t.Setenv("SIMULATE_SCAN_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.QRTTL != 45*time.Second {
		t.Fatalf("expected 45s qr ttl, got %s", cfg.QRTTL)
	}
	if !cfg.SimulateScanEnabled {
		t.Fatalf("expected simulate scan enabled")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":            "99999",
		"QR_TTL":          "-10s",
		"SESSION_BACKEND": "cluster",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("MASTER_SECRET", "secret")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoad_RemoteRequiresBaseURL(t *testing.T) {
	t.Setenv("MASTER_SECRET", "secret")
	t.Setenv("SESSION_BACKEND", "remote")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when remote backend has no base url")
	}

	t.Setenv("REMOTE_BASE_URL", "https://peer.example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionBackend != BackendRemote {
		t.Fatalf("expected remote backend")
	}
}
