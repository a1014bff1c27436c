package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"DIALPLANE_DATA_DIR", "DIALPLANE_HTTP_PORT", "DIALPLANE_LOG_LEVEL",
		"DIALPLANE_TELNYX_API_KEY", "DIALPLANE_TELNYX_API_BASE",
		"DIALPLANE_SIP_DOMAIN", "DIALPLANE_RECONCILE_INTERVAL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"dialplane"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.TelnyxAPIBase != defaultTelnyxAPIBase {
		t.Errorf("TelnyxAPIBase = %q, want %q", cfg.TelnyxAPIBase, defaultTelnyxAPIBase)
	}
	if cfg.SIPDomain != defaultSIPDomain {
		t.Errorf("SIPDomain = %q, want %q", cfg.SIPDomain, defaultSIPDomain)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.ReconcileInterval != defaultReconcileInterval {
		t.Errorf("ReconcileInterval = %d, want %d", cfg.ReconcileInterval, defaultReconcileInterval)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"dialplane"}
	t.Setenv("DIALPLANE_HTTP_PORT", "9090")
	t.Setenv("DIALPLANE_TELNYX_API_KEY", "KEY-test")
	t.Setenv("DIALPLANE_FALLBACK_SIP_USERNAME", "dispatcher1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.TelnyxAPIKey != "KEY-test" {
		t.Errorf("TelnyxAPIKey = %q, want KEY-test", cfg.TelnyxAPIKey)
	}
	if cfg.FallbackSIPUsername != "dispatcher1" {
		t.Errorf("FallbackSIPUsername = %q, want dispatcher1", cfg.FallbackSIPUsername)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"dialplane", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("DIALPLANE_HTTP_PORT", "9090")
	t.Setenv("DIALPLANE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"dialplane", "--http-port", "99999"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"dialplane", "--log-level", "verbose"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateBadFromNumber(t *testing.T) {
	os.Args = []string{"dialplane", "--default-from-number", "4045550100"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when default-from-number is not E.164")
	}
}

func TestAPIBaseTrailingSlashTrimmed(t *testing.T) {
	os.Args = []string{"dialplane", "--telnyx-api-base", "https://api.example.com/v2/"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TelnyxAPIBase != "https://api.example.com/v2" {
		t.Errorf("TelnyxAPIBase = %q, want trailing slash trimmed", cfg.TelnyxAPIBase)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJWTSecretBytes(t *testing.T) {
	t.Run("generated when empty", func(t *testing.T) {
		cfg := &Config{}
		key, err := cfg.JWTSecretBytes()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(key) != 32 {
			t.Errorf("key length = %d, want 32", len(key))
		}
		if cfg.JWTSecret == "" {
			t.Error("expected generated secret to be stored back on the config")
		}
	})

	t.Run("invalid hex", func(t *testing.T) {
		cfg := &Config{JWTSecret: "not-hex"}
		if _, err := cfg.JWTSecretBytes(); err == nil {
			t.Fatal("expected error for invalid hex secret")
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		cfg := &Config{JWTSecret: "abcd"}
		if _, err := cfg.JWTSecretBytes(); err == nil {
			t.Fatal("expected error for short secret")
		}
	})
}
