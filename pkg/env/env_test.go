package env

import (
	"testing"
	"time"
)

func TestGetEnvStringOrDefault(t *testing.T) {
	t.Setenv("PAIR_TEST_STRING", "  value  ")
	if got := GetEnvStringOrDefault("PAIR_TEST_STRING", "x"); got != "value" {
		t.Errorf("expected trimmed value, got %q", got)
	}

	t.Setenv("PAIR_TEST_STRING", "   ")
	if got := GetEnvStringOrDefault("PAIR_TEST_STRING", "x"); got != "x" {
		t.Errorf("blank value should fall back to default, got %q", got)
	}
}

func TestGetEnvIntOrDefault(t *testing.T) {
	t.Setenv("PAIR_TEST_INT", "0x10")
	if got := GetEnvIntOrDefault("PAIR_TEST_INT", 1); got != 16 {
		t.Errorf("expected 16, got %d", got)
	}

	t.Setenv("PAIR_TEST_INT", "nope")
	if got := GetEnvIntOrDefault("PAIR_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}

	t.Setenv("PAIR_TEST_INT", "-3")
	if got := GetEnvPositiveIntOrDefault("PAIR_TEST_INT", 5); got != 5 {
		t.Errorf("expected default 5 for negative value, got %d", got)
	}
}

func TestGetEnvDurationOrDefault(t *testing.T) {
	t.Setenv("PAIR_TEST_DURATION", "1500ms")
	if got := GetEnvDurationOrDefault("PAIR_TEST_DURATION", time.Second); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}

	t.Setenv("PAIR_TEST_DURATION", "-1s")
	if got := GetEnvDurationOrDefault("PAIR_TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("negative duration should fall back, got %v", got)
	}
}

func TestGetEnvBoolOrDefault(t *testing.T) {
	t.Setenv("PAIR_TEST_BOOL", "true")
	if !GetEnvBoolOrDefault("PAIR_TEST_BOOL", false) {
		t.Error("expected true")
	}

	t.Setenv("PAIR_TEST_BOOL", "maybe")
	if GetEnvBoolOrDefault("PAIR_TEST_BOOL", false) {
		t.Error("unparsable bool should fall back to false")
	}
}
