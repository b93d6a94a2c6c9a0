package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderMode selects the identity provider client variant.
type ProviderMode string

const (
	ProviderExternal    ProviderMode = "external"
	ProviderLocalTest   ProviderMode = "localtest"
	ProviderMock        ProviderMode = "mock"
	ProviderUnavailable ProviderMode = "unavailable"
)

// StoreBackend selects where engine state snapshots are persisted.
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StorePostgres StoreBackend = "postgres"
)

// Config carries everything authd needs to construct the engine.
type Config struct {
	ChallengeTTL time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration

	ProviderMode   ProviderMode
	ProviderURL    string
	ProviderAPIKey string

	StoreBackend StoreBackend
	StorePath    string
	PostgresDSN  string

	MetricsAddr string
}

// Load reads configuration from SIGNET_* environment variables and
// validates cross-field requirements.
func Load() (Config, error) {
	cfg := Config{
		ChallengeTTL: getDuration("SIGNET_CHALLENGE_TTL", 10*time.Minute),
		AccessTTL:    getDuration("SIGNET_ACCESS_TTL", time.Hour),
		RefreshTTL:   getDuration("SIGNET_REFRESH_TTL", 30*24*time.Hour),

		ProviderMode:   ProviderMode(getString("SIGNET_PROVIDER_MODE", string(ProviderExternal))),
		ProviderURL:    getString("SIGNET_PROVIDER_URL", ""),
		ProviderAPIKey: getString("SIGNET_PROVIDER_API_KEY", ""),

		StoreBackend: StoreBackend(getString("SIGNET_STORE_BACKEND", string(StoreFile))),
		StorePath:    getString("SIGNET_STORE_PATH", "signet-state.json"),
		PostgresDSN:  getString("SIGNET_PG_DSN", ""),

		MetricsAddr: getString("SIGNET_METRICS_ADDR", ":9102"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports misconfiguration before any subsystem starts.
func (c Config) Validate() error {
	switch c.ProviderMode {
	case ProviderExternal:
		if c.ProviderURL == "" {
			return fmt.Errorf("SIGNET_PROVIDER_URL is required in external provider mode")
		}
	case ProviderLocalTest, ProviderMock, ProviderUnavailable:
	default:
		return fmt.Errorf("unknown provider mode %q", c.ProviderMode)
	}
	switch c.StoreBackend {
	case StoreFile:
		if c.StorePath == "" {
			return fmt.Errorf("SIGNET_STORE_PATH is required for the file store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("SIGNET_PG_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.ChallengeTTL <= 0 || c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("TTLs must be positive")
	}
	if c.RefreshTTL < c.AccessTTL {
		return fmt.Errorf("refresh TTL must not be shorter than access TTL")
	}
	return nil
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
