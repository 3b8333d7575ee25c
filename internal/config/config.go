// Package config loads server settings from defaults, an optional YAML
// file and HIPSTERBAR_* environment variables, in that order.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"hipsterbar/internal/bar"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type contextKey struct{}

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(contextKey{}).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	ListenAddr      string        `yaml:"listenAddr"      split_words:"true"`
	Storage         string        `yaml:"storage"`
	DatabaseURL     string        `yaml:"databaseUrl"     envconfig:"DATABASE_URL"`
	SQLitePath      string        `yaml:"sqlitePath"      envconfig:"SQLITE_PATH"`
	DefaultQuota    int           `yaml:"defaultQuota"    split_words:"true"`
	DefaultPolicy   string        `yaml:"defaultPolicy"   split_words:"true"`
	Picker          string        `yaml:"picker"`
	OEmbedURL       string        `yaml:"oembedUrl"       envconfig:"OEMBED_URL"`
	OEmbedTimeout   time.Duration `yaml:"oembedTimeout"   envconfig:"OEMBED_TIMEOUT"`
	OTLPEndpoint    string        `yaml:"otlpEndpoint"    envconfig:"OTLP_ENDPOINT"`
	CreateRateLimit float64       `yaml:"createRateLimit" split_words:"true"`
	CreateRateBurst int           `yaml:"createRateBurst" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
	Debug           bool          `yaml:"debug"`
}

// Default returns the settings used when nothing overrides them: an
// in-memory SQLite store on :8080.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		Storage:         StorageSQLite,
		DefaultQuota:    3,
		DefaultPolicy:   string(bar.LockOnFirstBrew),
		Picker:          "random",
		OEmbedTimeout:   3 * time.Second,
		CreateRateLimit: 30,
		CreateRateBurst: 5,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load applies configFile (if not empty) and the environment on top of the
// defaults, then validates the result.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("hipsterbar", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("databaseUrl is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q (must be %q or %q)", c.Storage, StorageSQLite, StoragePostgres))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listenAddr is required"))
	}
	if c.DefaultQuota < 1 {
		errs = append(errs, fmt.Errorf("defaultQuota must be at least 1, got %d", c.DefaultQuota))
	}
	if !bar.SubmissionPolicy(c.DefaultPolicy).Valid() {
		errs = append(errs, fmt.Errorf("unknown defaultPolicy %q", c.DefaultPolicy))
	}
	if c.CreateRateLimit <= 0 || c.CreateRateBurst < 1 {
		errs = append(errs, errors.New("createRateLimit and createRateBurst must be positive"))
	}
	return errors.Join(errs...)
}
