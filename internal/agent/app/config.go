package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL string // Required: Medh API base, e.g. https://api.medh.co/api/v1/auth
	Origin     string // Origin reported in WebAuthn client data (default: https://app.medh.co)

	StoreBackend    string // Session store backend (file, sqlite, memory) (default: file)
	StateDir        string // Directory for agent state files (default: ~/.medh-passkey)
	StorePassphrase string // Passphrase sealing the file store (default: machine-local fallback)

	AutoApprove   bool          // Skip the interactive gesture prompt (default: false)
	PromptTimeout time.Duration // How long to wait for the gesture prompt (default: 2m)

	TOTPSecret string // Optional: base32 TOTP secret to answer step-up automatically

	Env       string // Environment (dev, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	cfg := Config{
		APIBaseURL:      getEnvOrDefault("MEDH_API_BASE_URL", "https://api.medh.co/api/v1/auth"),
		Origin:          getEnvOrDefault("MEDH_ORIGIN", "https://app.medh.co"),
		StoreBackend:    getEnvOrDefault("MEDH_STORE_BACKEND", "file"),
		StateDir:        os.Getenv("MEDH_STATE_DIR"),
		StorePassphrase: os.Getenv("MEDH_STORE_PASSPHRASE"),
		AutoApprove:     getEnvBoolOrDefault("MEDH_AUTO_APPROVE", false),
		PromptTimeout:   getEnvDurationOrDefault("MEDH_PROMPT_TIMEOUT", 2*time.Minute),
		TOTPSecret:      os.Getenv("MEDH_TOTP_SECRET"),
		Env:             getEnvOrDefault("ENV", "prod"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.StateDir = filepath.Join(home, ".medh-passkey")
	}

	if cfg.StorePassphrase == "" {
		// A CLI cannot demand a passphrase on every invocation. Fall back
		// to a host-local value so the file at least does not travel.
		host, err := os.Hostname()
		if err != nil {
			host = "medh-passkey"
		}
		cfg.StorePassphrase = "medh-passkey:" + host
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
