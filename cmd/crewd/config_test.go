package main

import (
	"testing"

	"github.com/ghostpirates/crew/internal/config"
)

func TestConfigValueKnownKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Default()

	tests := []struct {
		key  string
		want string
	}{
		{"review.max_revisions", "5"},
		{"review.acceptance_threshold", "0.75"},
		{"retry.max_attempts", "3"},
		{"retry.base_delay", "1s"},
		{"breaker.failure_threshold", "5"},
		{"breaker.cooldown", "30s"},
		{"team.spawn_workers", "true"},
		{"analyzer.strong_abort_roi", "0.05"},
		{"anthropic.api_key", "(not set)"},
	}
	for _, tc := range tests {
		got, err := configValue(cfg, tc.key)
		if err != nil {
			t.Errorf("configValue(%q): %v", tc.key, err)
			continue
		}
		if got != tc.want {
			t.Errorf("configValue(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestConfigValueUnknownKey(t *testing.T) {
	if _, err := configValue(config.Default(), "no.such.key"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a long goal description", 10); len([]rune(got)) != 10 {
		t.Errorf("truncate length = %d, want 10", len([]rune(got)))
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short input = %q", got)
	}
}
