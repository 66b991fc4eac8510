package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("MURMUR_STORE_DRIVER", "memory")
	t.Setenv("MURMUR_FEED_PAGE_SIZE", "7")
	t.Setenv("MURMUR_SCHEDULER_INTERVAL", "30s")
	t.Setenv("MURMUR_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Store.Driver != "memory" {
		t.Errorf("Expected store driver from env, got: %s", cfg.Store.Driver)
	}
	if cfg.Feed.PageSize != 7 {
		t.Errorf("Expected page size 7, got: %d", cfg.Feed.PageSize)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("Expected interval 30s, got: %s", cfg.Scheduler.Interval)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected CORS origins: %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MURMUR_STORE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Feed.PageSize != 5 {
		t.Errorf("Expected default page size 5, got: %d", cfg.Feed.PageSize)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Errorf("Expected default interval 1m, got: %s", cfg.Scheduler.Interval)
	}
	if cfg.Media.MaxUploadBytes != 10<<20 {
		t.Errorf("Expected 10MB upload cap, got: %d", cfg.Media.MaxUploadBytes)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:     StoreConfig{Driver: "postgres", DatabaseURL: "postgresql://test@localhost/test"},
			Feed:      FeedConfig{PageSize: 5},
			Scheduler: SchedulerConfig{Interval: time.Minute, BatchLimit: 500},
			Fanout:    FanoutConfig{BatchSize: 500},
			Media:     MediaConfig{MaxUploadBytes: 1 << 20},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"postgres without url", func(c *Config) { c.Store.DatabaseURL = "" }},
		{"mongo without database", func(c *Config) { c.Store = StoreConfig{Driver: "mongo", MongoURI: "mongodb://x"} }},
		{"zero page size", func(c *Config) { c.Feed.PageSize = 0 }},
		{"sub-second interval", func(c *Config) { c.Scheduler.Interval = 10 * time.Millisecond }},
		{"fanout batch over store limit", func(c *Config) { c.Fanout.BatchSize = 501 }},
		{"scheduler batch over store limit", func(c *Config) { c.Scheduler.BatchLimit = 1000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("feed_page_size"); got != "MURMUR_FEED_PAGE_SIZE" {
		t.Errorf("envKey() = %s", got)
	}
	if got := envKey("log-level"); got != "MURMUR_LOG_LEVEL" {
		t.Errorf("envKey() = %s", got)
	}
}
