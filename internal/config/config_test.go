package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("PORT", "8000")
	t.Setenv("SECRET_KEY", "supersecret")
	t.Setenv("CONVERSATION_IDLE_TTL", "1h")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConversationTTL != time.Hour {
		t.Errorf("ConversationTTL = %v, want 1h", cfg.ConversationTTL)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"90m", 90 * time.Minute},
		{"45", 45 * time.Minute},
		{"0", 0},
		{"garbage", 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.value)
		if got := getEnvDuration("TEST_DURATION", 5*time.Minute); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:      "8000",
			DBDriver:  DriverSQLite,
			DBPath:    "x.db",
			SecretKey: "k",
			ConversationLog: ConversationLogConfig{
				Dir:        "logs",
				GlobalPath: "logs/all.ndjson",
				QueueSize:  10,
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"postgres without url", func(c *Config) { c.DBDriver = DriverPostgres }},
		{"negative ttl", func(c *Config) { c.ConversationTTL = -time.Second }},
		{"empty secret", func(c *Config) { c.SecretKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	mem := valid()
	mem.DBDriver = DriverMemory
	mem.DBPath = ""
	if err := mem.Validate(); err != nil {
		t.Fatalf("memory driver rejected: %v", err)
	}
}
