package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/entity-dataload/pkg/reader"
	"github.com/David-Botos/entity-dataload/pkg/transform"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user", cfg.TypeName)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1, cfg.StartAt)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 4.0, cfg.RateLimit)
	assert.Equal(t, "email", cfg.PrimaryKey)
	assert.Equal(t, []int{403, 500, 504, 510}, cfg.RetryAPICodes)
	assert.Equal(t, []int{403, 500, 501, 502}, cfg.RetryHTTPCodes)
	assert.Equal(t, "1/2/2006", cfg.DateLayout)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.False(t, cfg.DryRun)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATALOAD_TYPE_NAME", "member")
	t.Setenv("DATALOAD_BATCH_SIZE", "50")
	t.Setenv("DATALOAD_TIMEOUT", "30s")
	t.Setenv("DATALOAD_RATE_LIMIT", "2.5")
	t.Setenv("DATALOAD_DELTA_MIGRATION", "true")
	t.Setenv("DATALOAD_RETRY_API_CODES", "500,510")
	t.Setenv("DATALOAD_UPDATE_FORBIDDEN", "password,created")
	t.Setenv("DATALOAD_TRANSFORMS", "birthday=date")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "member", cfg.TypeName)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.True(t, cfg.DeltaMigration)
	assert.Equal(t, []int{500, 510}, cfg.RetryAPICodes)
	assert.Equal(t, []string{"password", "created"}, cfg.UpdateForbidden)
	assert.Equal(t, []string{"birthday=date"}, cfg.Transforms)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATALOAD_QUEUE_SIZE=7\nDATALOAD_CLIENT_ID=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DATALOAD_QUEUE_SIZE") })

	// Process environment wins over the file
	t.Setenv("DATALOAD_CLIENT_ID", "from-env")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.QueueSize)
	assert.Equal(t, "from-env", cfg.API.ClientID)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("DATALOAD_BATCH_SIZE", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		target error
	}{
		{"batch size too small", func(c *Config) { c.BatchSize = 2 }, reader.ErrInvalidBatchSize},
		{"start at zero", func(c *Config) { c.StartAt = 0 }, reader.ErrInvalidStartAt},
		{"no workers", func(c *Config) { c.Workers = 0 }, nil},
		{"negative queue", func(c *Config) { c.QueueSize = -1 }, nil},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, nil},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, nil},
		{"empty primary key", func(c *Config) { c.PrimaryKey = "" }, nil},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.ValidateCredentials(), ErrMissingCredentials)

	cfg.API = APIConfig{URL: "https://example.test", ClientID: "id", ClientSecret: "secret"}
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestRegistry(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.True(t, reg.Has("optIn.status"))
	assert.True(t, reg.Has("password"))

	cfg.Transforms = []string{"birthday=astrology"}
	_, err = cfg.Registry()
	assert.ErrorIs(t, err, transform.ErrUnknownKind)

	cfg.Transforms = []string{"birthday"}
	_, err = cfg.Registry()
	assert.Error(t, err)
}
