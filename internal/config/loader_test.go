package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Auth.AccessSecret = "access"
	cfg.Auth.RefreshSecret = "refresh"
	return cfg
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "qwork.yaml")
	content := `
server:
  address: ":9000"
database:
  driver: memory
auth:
  access_secret: a
  refresh_secret: b
moderation:
  cooldown: 24h
  require_document: false
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() returned error: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("Server.Address = %s, want :9000", cfg.Server.Address)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Database.Driver = %s, want memory", cfg.Database.Driver)
	}
	if cfg.Moderation.Cooldown != 24*time.Hour || cfg.Moderation.RequireDocument {
		t.Errorf("Moderation = %+v", cfg.Moderation)
	}
	// Untouched sections keep their defaults
	if cfg.Auth.AccessTTL != time.Hour {
		t.Errorf("Auth.AccessTTL = %v, want 1h", cfg.Auth.AccessTTL)
	}
	if cfg.Server.MaxUploadBytes != 100<<20 {
		t.Errorf("Server.MaxUploadBytes = %d", cfg.Server.MaxUploadBytes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	env := map[string]string{
		"QWORK_SERVER_ADDRESS":      ":7000",
		"QWORK_AUTH_ACCESS_SECRET":  "s1",
		"QWORK_AUTH_REFRESH_TTL":    "48h",
		"QWORK_REDIS_DB":            "3",
		"QWORK_RATE_LIMIT_ENABLED":  "false",
		"QWORK_MODERATION_COOLDOWN": "1h",
		"QWORK_LOG_LEVEL":           "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	if err := loadFromEnv(cfg, lookup); err != nil {
		t.Fatalf("loadFromEnv() returned error: %v", err)
	}
	if cfg.Server.Address != ":7000" {
		t.Errorf("Server.Address = %s", cfg.Server.Address)
	}
	if cfg.Auth.AccessSecret != "s1" {
		t.Errorf("Auth.AccessSecret = %s", cfg.Auth.AccessSecret)
	}
	if cfg.Auth.RefreshTTL != 48*time.Hour {
		t.Errorf("Auth.RefreshTTL = %v", cfg.Auth.RefreshTTL)
	}
	if cfg.Store.Redis.DB != 3 {
		t.Errorf("Store.Redis.DB = %d", cfg.Store.Redis.DB)
	}
	if cfg.RateLimit.Enabled {
		t.Error("Expected rate limit to be disabled")
	}
	if cfg.Moderation.Cooldown != time.Hour {
		t.Errorf("Moderation.Cooldown = %v", cfg.Moderation.Cooldown)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Empty override changed log level to %q", cfg.Logging.Level)
	}
}

func TestLoadFromEnv_InvalidValue(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "QWORK_SMTP_PORT" {
			return "smtp", true
		}
		return "", false
	}
	err := loadFromEnv(Default(), lookup)
	if err == nil || !strings.Contains(err.Error(), "QWORK_SMTP_PORT") {
		t.Errorf("Expected error naming QWORK_SMTP_PORT, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "empty address", mutate: func(c *Config) { c.Server.Address = "" }, wantErr: "server address"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "sqlite" }, wantErr: "database driver"},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.RefreshSecret = "" }, wantErr: "secrets cannot be empty"},
		{name: "same secrets", mutate: func(c *Config) { c.Auth.RefreshSecret = c.Auth.AccessSecret }, wantErr: "must differ"},
		{name: "redis without address", mutate: func(c *Config) {
			c.Store.Type = "redis"
			c.Store.Redis.Address = ""
		}, wantErr: "redis address"},
		{name: "smtp without host", mutate: func(c *Config) { c.Mail.Driver = "smtp" }, wantErr: "smtp host"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "log level"},
		{name: "negative cooldown", mutate: func(c *Config) { c.Moderation.Cooldown = -time.Hour }, wantErr: "cooldown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() returned error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
