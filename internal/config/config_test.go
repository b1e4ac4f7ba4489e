package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("JWT_ISSUER", "gateway")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTERNAL_API_TOKEN", "internal")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BRIDGE_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "USD", cfg.AccountCurrency)
	assert.Equal(t, "100", cfg.Risk.MarginCallLevel.String())
	assert.Equal(t, "50", cfg.Risk.CutoffLevel.String())
	assert.Equal(t, "0.00001", cfg.Risk.TriggerEpsilon.String())
	assert.Equal(t, 50*time.Millisecond, cfg.Risk.Debounce)
	assert.Equal(t, 5*time.Minute, cfg.Risk.ConfigTTL)
	assert.Equal(t, 3, cfg.Bridge.MaxAttempts)
	assert.False(t, cfg.Bridge.Enabled())
}

func TestLoadReportsAllMissing(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, "missing required env: HTTP_ADDR,JWT_SECRET,DB_DSN", err.Error())
}

func TestLoadBridgeNeedsSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BRIDGE_URL", "http://bridge.local")
	t.Setenv("BRIDGE_SERVICE_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BRIDGE_SERVICE_SECRET")
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "risk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("margin_call_level: 120\ncutoff_level: 60\nprice_debounce: 100ms\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CUTOFF_LEVEL", "40")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "120", cfg.Risk.MarginCallLevel.String())
	assert.Equal(t, "40", cfg.Risk.CutoffLevel.String())
	assert.Equal(t, 100*time.Millisecond, cfg.Risk.Debounce)
}

func TestLoadRejectsInvertedLevels(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MARGIN_CALL_LEVEL", "50")
	t.Setenv("CUTOFF_LEVEL", "80")

	_, err := Load()
	require.Error(t, err)
}
