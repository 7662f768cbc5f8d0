package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MESSAGE_PAGE_SIZE", "")
	t.Setenv("JWT_EXPIRES_IN", "")
	t.Setenv("CONVERSATION_UNIQUE_PAIRS", "")

	cfg := Load()
	if cfg.Port != "5000" {
		t.Fatalf("expected default port 5000, got %q", cfg.Port)
	}
	if cfg.MessagePageSize != 50 {
		t.Fatalf("expected page size 50, got %d", cfg.MessagePageSize)
	}
	if cfg.JWTExpiresIn != 7*24*time.Hour {
		t.Fatalf("unexpected token lifetime %s", cfg.JWTExpiresIn)
	}
	if cfg.UniqueConversationPairs {
		t.Fatal("unique pairs must be opt-in")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", " 8080 ")
	t.Setenv("CLIENT_URL", "http://a.test, http://b.test,")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("CONVERSATION_UNIQUE_PAIRS", "true")
	t.Setenv("MESSAGE_PAGE_SIZE", "not-a-number")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected trimmed port, got %q", cfg.Port)
	}
	if len(cfg.ClientURLs) != 2 || cfg.ClientURLs[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.ClientURLs)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected window %s", cfg.RateLimitWindow)
	}
	if !cfg.UniqueConversationPairs {
		t.Fatal("expected unique pairs enabled")
	}
	if cfg.MessagePageSize != 50 {
		t.Fatalf("invalid value should fall back, got %d", cfg.MessagePageSize)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{MessagePageSize: 50}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing mongo uri and secret")
	}
	cfg.MongoURI = "mongodb://localhost:27017"
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WebPushEnabled() {
		t.Fatal("web push should be disabled without keys")
	}
}
