// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	PublicURL string `yaml:"public_url"` // base used for hosted checkout links
}

// BackendConfig describes the storefront backend. The secondary URL doubles
// as the last-resort raw transport target.
type BackendConfig struct {
	PrimaryURL     string        `yaml:"primary_url"`
	SecondaryURL   string        `yaml:"secondary_url"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	VerifyTimeout  time.Duration `yaml:"verify_timeout"`
}

type PaymentConfig struct {
	Provider    string        `yaml:"provider"` // razorpay
	KeyID       string        `yaml:"key_id"`
	Currency    string        `yaml:"currency"`
	CompanyName string        `yaml:"company_name"`
	ThemeColor  string        `yaml:"theme_color"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	TotalCount  int           `yaml:"total_count"` // billing cycles for subscriptions
}

type SessionConfig struct {
	Backend       string `yaml:"backend"` // file|redis
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryption_key"`
	LoginURL      string `yaml:"login_url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type DiagnosticsConfig struct {
	Capacity int `yaml:"capacity"`
}

type Config struct {
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Backend     BackendConfig     `yaml:"backend"`
	Payment     PaymentConfig     `yaml:"payment"`
	Session     SessionConfig     `yaml:"session"`
	Redis       RedisConfig       `yaml:"redis"`
	Locale      string            `yaml:"locale"`
	Workers     int               `yaml:"workers"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse applies defaults and minimal validation to raw YAML.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8088"
	}
	if cfg.HTTP.PublicURL == "" {
		cfg.HTTP.PublicURL = "http://" + cfg.HTTP.Addr
	}
	cfg.HTTP.PublicURL = strings.TrimRight(cfg.HTTP.PublicURL, "/")
	if cfg.Backend.AttemptTimeout <= 0 {
		cfg.Backend.AttemptTimeout = 10 * time.Second
	}
	if cfg.Backend.VerifyTimeout <= 0 {
		cfg.Backend.VerifyTimeout = 2 * cfg.Backend.AttemptTimeout
	}
	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "razorpay"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "INR"
	}
	if cfg.Payment.CompanyName == "" {
		cfg.Payment.CompanyName = "Your Company"
	}
	if cfg.Payment.ThemeColor == "" {
		cfg.Payment.ThemeColor = "#1890ff"
	}
	if cfg.Payment.SessionTTL <= 0 {
		cfg.Payment.SessionTTL = 30 * time.Minute
	}
	if cfg.Payment.TotalCount <= 0 {
		cfg.Payment.TotalCount = 12
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "file"
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = defaultSessionPath()
	}
	if cfg.Session.LoginURL == "" {
		cfg.Session.LoginURL = "/login"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Diagnostics.Capacity <= 0 {
		cfg.Diagnostics.Capacity = 100
	}

	// Minimal validation
	if cfg.Backend.PrimaryURL == "" {
		return nil, errors.New("backend.primary_url is required")
	}
	if cfg.Backend.SecondaryURL == "" {
		return nil, errors.New("backend.secondary_url is required")
	}
	if cfg.Payment.Provider != "razorpay" && cfg.Payment.Provider != "manual" {
		return nil, fmt.Errorf("payment.provider %q is not supported", cfg.Payment.Provider)
	}
	if cfg.Payment.Provider == "razorpay" && cfg.Payment.KeyID == "" {
		return nil, errors.New("payment.key_id is required for razorpay")
	}
	switch cfg.Session.Backend {
	case "file":
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required for the redis session backend")
		}
	default:
		return nil, fmt.Errorf("session.backend %q is not supported", cfg.Session.Backend)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(home, ".storefront", "session.json")
}
