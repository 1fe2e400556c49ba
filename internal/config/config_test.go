package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	raw := []byte(`
backend:
  primary_url: http://localhost:5000/api
  secondary_url: https://backend.example.com/api
payment:
  key_id: rzp_test_123
`)
	cfg, err := Parse(raw, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Backend.AttemptTimeout != 10*time.Second {
		t.Errorf("attempt timeout = %v, want 10s", cfg.Backend.AttemptTimeout)
	}
	if cfg.Backend.VerifyTimeout != 20*time.Second {
		t.Errorf("verify timeout = %v, want 20s", cfg.Backend.VerifyTimeout)
	}
	if cfg.Payment.Currency != "INR" || cfg.Payment.TotalCount != 12 || cfg.Payment.ThemeColor != "#1890ff" {
		t.Errorf("payment defaults not applied: %+v", cfg.Payment)
	}
	if cfg.Payment.SessionTTL != 30*time.Minute {
		t.Errorf("session ttl = %v", cfg.Payment.SessionTTL)
	}
	if cfg.Session.Backend != "file" || cfg.Session.Path == "" {
		t.Errorf("session defaults not applied: %+v", cfg.Session)
	}
	if cfg.Diagnostics.Capacity != 100 || cfg.Workers != 2 || cfg.Locale != "en" {
		t.Errorf("misc defaults not applied: %+v", cfg)
	}
	if !cfg.Runtime.Dev {
		t.Error("runtime dev flag not propagated")
	}
}

func TestParse_Validation(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"missing primary", "backend: {secondary_url: x}\npayment: {key_id: k}", "backend.primary_url"},
		{"missing secondary", "backend: {primary_url: x}\npayment: {key_id: k}", "backend.secondary_url"},
		{"missing key", "backend: {primary_url: x, secondary_url: y}", "payment.key_id"},
		{"unknown provider", "backend: {primary_url: x, secondary_url: y}\npayment: {provider: paypal}", "payment.provider"},
		{"redis without url", "backend: {primary_url: x, secondary_url: y}\npayment: {key_id: k}\nsession: {backend: redis}", "redis.url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw), false)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "backend: {primary_url: http://a, secondary_url: http://b, attempt_timeout: 3s}\npayment: {provider: manual}\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path, false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend.AttemptTimeout != 3*time.Second || cfg.Backend.VerifyTimeout != 6*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Backend.AttemptTimeout, cfg.Backend.VerifyTimeout)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Error("expected error for missing file")
	}
}
