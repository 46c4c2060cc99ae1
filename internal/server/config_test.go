package server

import (
	"os"
	"testing"
)

func TestTokensFromEnvParsesCommaSeparatedList(t *testing.T) {
	t.Setenv("CMDCHAT_TOKENS", "t1, t2 ,t3")
	got := TokensFromEnv()
	for _, want := range []string{"t1", "t2", "t3"} {
		if !got[want] {
			t.Errorf("TokensFromEnv() missing %q in %v", want, got)
		}
	}
	if len(got) != 3 {
		t.Errorf("len(TokensFromEnv()) = %d, want 3", len(got))
	}
}

func TestTokensFromEnvEmptyDisablesAuth(t *testing.T) {
	t.Setenv("CMDCHAT_TOKENS", "")
	if got := TokensFromEnv(); len(got) != 0 {
		t.Errorf("TokensFromEnv() = %v, want empty", got)
	}
}

func TestConfigAuthRequired(t *testing.T) {
	t.Parallel()

	open := &Config{}
	if open.AuthRequired() {
		t.Error("AuthRequired() = true for empty token set, want false")
	}

	gated := &Config{Tokens: map[string]bool{"t1": true}}
	if !gated.AuthRequired() {
		t.Error("AuthRequired() = false for non-empty token set, want true")
	}
	if !gated.AcceptsToken("t1") {
		t.Error("AcceptsToken(t1) = false, want true")
	}
	if gated.AcceptsToken("wrong") {
		t.Error("AcceptsToken(wrong) = true, want false")
	}
}

func TestConfigTLSEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cert, key string
		want      bool
	}{
		{"", "", false},
		{"cert.pem", "key.pem", true},
		{"cert.pem", "", false},
	}
	for _, tt := range tests {
		c := &Config{CertFile: tt.cert, KeyFile: tt.key}
		if got := c.TLSEnabled(); got != tt.want {
			t.Errorf("TLSEnabled(%q,%q) = %v, want %v", tt.cert, tt.key, got, tt.want)
		}
	}
}

func TestMetricsEnabledFromEnv(t *testing.T) {
	t.Setenv("CMDCHAT_METRICS", "0")
	if MetricsEnabledFromEnv() {
		t.Error("MetricsEnabledFromEnv() = true with CMDCHAT_METRICS=0, want false")
	}

	if err := os.Unsetenv("CMDCHAT_METRICS"); err != nil {
		t.Fatalf("Unsetenv() error = %v", err)
	}
	if !MetricsEnabledFromEnv() {
		t.Error("MetricsEnabledFromEnv() = false when unset, want true")
	}
}
