package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("TGCHAT_TEST_STRING", "  value ")
	if got := String("TGCHAT_TEST_STRING", "fallback"); got != "value" {
		t.Errorf("String() = %q, want %q", got, "value")
	}
	if got := String("TGCHAT_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("String() missing = %q, want fallback", got)
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 7},
		{"12", 12},
		{"invalid", 7},
		{"-5", 7},
		{"0", 7},
	}
	for _, tt := range tests {
		t.Setenv("TGCHAT_TEST_INT", tt.raw)
		if got := Int("TGCHAT_TEST_INT", 7); got != tt.want {
			t.Errorf("Int(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestBool(t *testing.T) {
	t.Setenv("TGCHAT_TEST_BOOL", "true")
	if !Bool("TGCHAT_TEST_BOOL", false) {
		t.Error("Bool(true) = false")
	}
	t.Setenv("TGCHAT_TEST_BOOL", "nope")
	if !Bool("TGCHAT_TEST_BOOL", true) {
		t.Error("Bool(malformed) did not return fallback")
	}
}

func TestMillis(t *testing.T) {
	t.Setenv("TGCHAT_TEST_MS", "250")
	if got := Millis("TGCHAT_TEST_MS", time.Second); got != 250*time.Millisecond {
		t.Errorf("Millis() = %v, want 250ms", got)
	}
	t.Setenv("TGCHAT_TEST_MS", "abc")
	if got := Millis("TGCHAT_TEST_MS", time.Second); got != time.Second {
		t.Errorf("Millis(malformed) = %v, want 1s", got)
	}
}
