package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, 3, cfg.DefaultQuota)
	assert.Equal(t, "lock_on_first_brew", cfg.DefaultPolicy)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hipsterbar.yaml")
	yml := `
listenAddr: ":9000"
storage: postgres
databaseUrl: postgres://bar@localhost/bar
defaultQuota: 5
oembedTimeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("HIPSTERBAR_DEFAULT_QUOTA", "7")
	t.Setenv("HIPSTERBAR_OEMBED_URL", "https://oembed.example/oembed")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "postgres://bar@localhost/bar", cfg.DatabaseURL)
	assert.Equal(t, 7, cfg.DefaultQuota)
	assert.Equal(t, 2*time.Second, cfg.OEmbedTimeout)
	assert.Equal(t, "https://oembed.example/oembed", cfg.OEmbedURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown storage", func(c *Config) { c.Storage = "redis" }, `unknown storage "redis"`},
		{"postgres without url", func(c *Config) { c.Storage = StoragePostgres }, "databaseUrl is required"},
		{"zero quota", func(c *Config) { c.DefaultQuota = 0 }, "defaultQuota must be at least 1"},
		{"bad policy", func(c *Config) { c.DefaultPolicy = "never" }, `unknown defaultPolicy "never"`},
		{"no rate", func(c *Config) { c.CreateRateBurst = 0 }, "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := Default()
	assert.Same(t, cfg, FromContext(WithContext(context.Background(), cfg)))
}
