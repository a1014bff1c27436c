package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the Dialplane server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	HTTPPort    int
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"
	CORSOrigins string

	TelnyxAPIKey     string // bearer API key for the Telnyx v2 API
	TelnyxAPIBase    string // override for tests; defaults to the public API
	CallControlAppID string // call control application id used for outbound dials
	SIPConnectionID  string // credential SIP connection id agents register against
	SIPDomain        string // domain appended to agent SIP usernames when dialing

	DefaultFromNumber   string // E.164 caller id used when the caller's choice is invalid
	FallbackSIPUsername string // global last-resort routing target

	JWTSecret          string // hex-encoded 32-byte secret for agent JWT signing
	FCMCredentialsFile string // Firebase service-account JSON for agent push
	SessionStoreDSN    string // PostgreSQL DSN for the shared session store; empty = in-memory

	ReconcileInterval int // minutes between background recording reconciliation runs; 0 disables
}

// defaults
const (
	defaultDataDir           = "./data"
	defaultHTTPPort          = 8080
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultTelnyxAPIBase     = "https://api.telnyx.com/v2"
	defaultSIPDomain         = "sip.telnyx.com"
	defaultReconcileInterval = 60
)

// envPrefix is the prefix for all Dialplane environment variables.
const envPrefix = "DIALPLANE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("dialplane", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the SQLite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.TelnyxAPIKey, "telnyx-api-key", "", "bearer API key for the Telnyx v2 API")
	fs.StringVar(&cfg.TelnyxAPIBase, "telnyx-api-base", defaultTelnyxAPIBase, "base URL of the Telnyx v2 API")
	fs.StringVar(&cfg.CallControlAppID, "call-control-app-id", "", "Telnyx call control application id for outbound dials")
	fs.StringVar(&cfg.SIPConnectionID, "sip-connection-id", "", "Telnyx credential SIP connection id for agent endpoints")
	fs.StringVar(&cfg.SIPDomain, "sip-domain", defaultSIPDomain, "SIP domain appended to agent usernames when dialing")
	fs.StringVar(&cfg.DefaultFromNumber, "default-from-number", "", "E.164 caller id used when the requested from number is invalid")
	fs.StringVar(&cfg.FallbackSIPUsername, "fallback-sip-username", "", "global last-resort SIP username for inbound routing")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for agent JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.FCMCredentialsFile, "fcm-credentials-file", "", "path to a Firebase service-account JSON file for agent push")
	fs.StringVar(&cfg.SessionStoreDSN, "session-store-dsn", "", "PostgreSQL DSN for the shared call-session store (empty = in-memory)")
	fs.IntVar(&cfg.ReconcileInterval, "reconcile-interval", defaultReconcileInterval, "minutes between background recording reconciliation runs (0 disables)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":              envPrefix + "DATA_DIR",
		"http-port":             envPrefix + "HTTP_PORT",
		"log-level":             envPrefix + "LOG_LEVEL",
		"log-format":            envPrefix + "LOG_FORMAT",
		"cors-origins":          envPrefix + "CORS_ORIGINS",
		"telnyx-api-key":        envPrefix + "TELNYX_API_KEY",
		"telnyx-api-base":       envPrefix + "TELNYX_API_BASE",
		"call-control-app-id":   envPrefix + "CALL_CONTROL_APP_ID",
		"sip-connection-id":     envPrefix + "SIP_CONNECTION_ID",
		"sip-domain":            envPrefix + "SIP_DOMAIN",
		"default-from-number":   envPrefix + "DEFAULT_FROM_NUMBER",
		"fallback-sip-username": envPrefix + "FALLBACK_SIP_USERNAME",
		"jwt-secret":            envPrefix + "JWT_SECRET",
		"fcm-credentials-file":  envPrefix + "FCM_CREDENTIALS_FILE",
		"session-store-dsn":     envPrefix + "SESSION_STORE_DSN",
		"reconcile-interval":    envPrefix + "RECONCILE_INTERVAL",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "telnyx-api-key":
			cfg.TelnyxAPIKey = val
		case "telnyx-api-base":
			cfg.TelnyxAPIBase = val
		case "call-control-app-id":
			cfg.CallControlAppID = val
		case "sip-connection-id":
			cfg.SIPConnectionID = val
		case "sip-domain":
			cfg.SIPDomain = val
		case "default-from-number":
			cfg.DefaultFromNumber = val
		case "fallback-sip-username":
			cfg.FallbackSIPUsername = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "fcm-credentials-file":
			cfg.FCMCredentialsFile = val
		case "session-store-dsn":
			cfg.SessionStoreDSN = val
		case "reconcile-interval":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ReconcileInterval = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.TelnyxAPIBase == "" {
		return fmt.Errorf("telnyx-api-base must not be empty")
	}
	c.TelnyxAPIBase = strings.TrimRight(c.TelnyxAPIBase, "/")

	if c.SIPDomain == "" {
		return fmt.Errorf("sip-domain must not be empty")
	}

	if c.DefaultFromNumber != "" && !strings.HasPrefix(c.DefaultFromNumber, "+") {
		return fmt.Errorf("default-from-number must be E.164 (start with +), got %q", c.DefaultFromNumber)
	}

	if c.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile-interval must not be negative, got %d", c.ReconcileInterval)
	}

	return nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
