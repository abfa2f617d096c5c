package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
verifier:
  base_url: https://verify.example.com
  api_key: test-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Verifier.RateLimit != 30 {
		t.Errorf("RateLimit = %d, want 30", cfg.Verifier.RateLimit)
	}
	if cfg.Verifier.RateWindow != time.Minute {
		t.Errorf("RateWindow = %v, want 1m", cfg.Verifier.RateWindow)
	}
	if cfg.Verifier.BreakerThreshold != 3 {
		t.Errorf("BreakerThreshold = %d, want 3", cfg.Verifier.BreakerThreshold)
	}
	if cfg.Engine.MaxQueueDepth != 2000 {
		t.Errorf("MaxQueueDepth = %d, want 2000", cfg.Engine.MaxQueueDepth)
	}
	if cfg.Engine.MaxDelaySeconds != 900 {
		t.Errorf("MaxDelaySeconds = %d, want 900", cfg.Engine.MaxDelaySeconds)
	}
	if cfg.Reputation.MaxBounceRate != 0.05 {
		t.Errorf("MaxBounceRate = %f, want 0.05", cfg.Reputation.MaxBounceRate)
	}
	if cfg.Reputation.MaxComplaintRate != 0.001 {
		t.Errorf("MaxComplaintRate = %f, want 0.001", cfg.Reputation.MaxComplaintRate)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadMissingVerifierBaseURL(t *testing.T) {
	path := writeConfig(t, `
verifier:
  api_key: test-key
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for missing verifier.base_url")
	}
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	t.Setenv("PIVOTR_VERIFIER_API_KEY", "env-key")

	path := writeConfig(t, `
verifier:
  base_url: https://verify.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Verifier.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.Verifier.APIKey)
	}
}

func TestLoadInvalidThresholds(t *testing.T) {
	path := writeConfig(t, `
verifier:
  base_url: https://verify.example.com
  api_key: test-key
reputation:
  max_bounce_rate: 1.5
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for out-of-range bounce rate")
	}
}
