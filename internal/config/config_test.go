package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SIGNET_PROVIDER_MODE", "localtest")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderLocalTest, cfg.ProviderMode)
	require.Equal(t, StoreFile, cfg.StoreBackend)
	require.Equal(t, 10*time.Minute, cfg.ChallengeTTL)
	require.Equal(t, time.Hour, cfg.AccessTTL)
}

func TestLoadExternalRequiresURL(t *testing.T) {
	t.Setenv("SIGNET_PROVIDER_MODE", "external")
	t.Setenv("SIGNET_PROVIDER_URL", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("SIGNET_PROVIDER_URL", "https://magic.example.com")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://magic.example.com", cfg.ProviderURL)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Config{
		ChallengeTTL: time.Minute,
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		ProviderMode: ProviderMock,
		StoreBackend: StoreBackend("etcd"),
	}
	require.Error(t, cfg.Validate())
}

func TestValidateTTLOrdering(t *testing.T) {
	cfg := Config{
		ChallengeTTL: time.Minute,
		AccessTTL:    2 * time.Hour,
		RefreshTTL:   time.Hour,
		ProviderMode: ProviderMock,
		StoreBackend: StoreFile,
		StorePath:    "state.json",
	}
	require.Error(t, cfg.Validate())
}

func TestBadDurationFallsBack(t *testing.T) {
	t.Setenv("SIGNET_PROVIDER_MODE", "mock")
	t.Setenv("SIGNET_ACCESS_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.AccessTTL)
}
