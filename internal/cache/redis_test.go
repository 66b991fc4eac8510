package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/murmurhq/murmur/pkg/config"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{
			name:  "single part",
			parts: []string{"test"},
		},
		{
			name:  "multiple parts",
			parts: []string{"test", "key", "with", "many", "parts"},
		},
		{
			name:  "empty parts",
			parts: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}

	if HashKey("ab", "c") == HashKey("a", "bc") {
		t.Error("HashKey() should keep part boundaries")
	}
}

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "test",
			expected: "murmur:test",
		},
		{
			name:     "key with colon",
			key:      "profile:u1",
			expected: "murmur:profile:u1",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "murmur:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if c.Enabled() {
		t.Error("nil cache reports enabled")
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Get() error = %v", err)
	}
	if err := c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("SetJSON() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	url := os.Getenv("MURMUR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MURMUR_TEST_REDIS_URL not set")
	}
	c, err := New(&config.RedisConfig{URL: url, Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	type profile struct{ Name string }
	if err := c.SetJSON(ctx, "test:profile", profile{Name: "A"}, time.Minute); err != nil {
		t.Fatal(err)
	}
	var got profile
	if err := c.GetJSON(ctx, "test:profile", &got); err != nil || got.Name != "A" {
		t.Errorf("GetJSON() = %+v, %v", got, err)
	}
	_ = c.Delete(ctx, "test:profile")
	if err := c.GetJSON(ctx, "test:profile", &got); !errors.Is(err, ErrMiss) {
		t.Errorf("after delete error = %v", err)
	}
}
