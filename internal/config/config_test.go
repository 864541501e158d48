package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("RATE_LIMIT_TRUSTED_PROXIES", "")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, "minio", cfg.Storage.Driver)
	assert.Equal(t, "churches", cfg.Storage.KeyPrefix)
	assert.Equal(t, DatabaseDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.GreaterOrEqual(t, cfg.Worker.MaxActiveUploads, 1)
	assert.Empty(t, cfg.RateLimit.TrustedProxies)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("PREVIEW_MAX_ENTRIES", "12")
	t.Setenv("TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("RATE_LIMIT_TRUSTED_PROXIES", "10.0.0.0/8, ,172.16.0.5")

	cfg := Load()
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, DatabaseDriverMemory, cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 12, cfg.Preview.MaxEntries)
	assert.InDelta(t, 0.25, cfg.Tracing.SampleRatio, 1e-9)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.5"}, cfg.RateLimit.TrustedProxies)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("PHOTOFLOW_TEST_INT", "abc")
	t.Setenv("PHOTOFLOW_TEST_DURATION", "soon")
	t.Setenv("PHOTOFLOW_TEST_BOOL", "perhaps")

	assert.Equal(t, 7, envInt("PHOTOFLOW_TEST_INT", 7))
	assert.Equal(t, time.Second, envDuration("PHOTOFLOW_TEST_DURATION", time.Second))
	assert.True(t, envBool("PHOTOFLOW_TEST_BOOL", true))
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PHOTOFLOW_DOTENV_A=from-file\nPHOTOFLOW_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("PHOTOFLOW_DOTENV_A", "from-env")
	t.Setenv("PHOTOFLOW_DOTENV_B", "")
	os.Unsetenv("PHOTOFLOW_DOTENV_B")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("PHOTOFLOW_DOTENV_A"))
	assert.Equal(t, "from-file", os.Getenv("PHOTOFLOW_DOTENV_B"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
