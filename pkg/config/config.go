// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/David-Botos/entity-dataload/pkg/reader"
	"github.com/David-Botos/entity-dataload/pkg/transform"
)

// EnvPrefix is prepended to every dataload variable
const EnvPrefix = "DATALOAD_"

// ErrMissingCredentials is returned when the entity API cannot be addressed
var ErrMissingCredentials = errors.New("missing API credentials: DATALOAD_API_URL, DATALOAD_CLIENT_ID and DATALOAD_CLIENT_SECRET are required")

// APIConfig addresses the remote entity store
type APIConfig struct {
	URL          string `env:"API_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Config represents the application configuration
type Config struct {
	API APIConfig

	// Run settings
	TypeName        string        `env:"TYPE_NAME" envDefault:"user"`
	BatchSize       int           `env:"BATCH_SIZE" envDefault:"100"`
	StartAt         int           `env:"START_AT" envDefault:"1"`
	Workers         int           `env:"WORKERS" envDefault:"10"`
	QueueSize       int           `env:"QUEUE_SIZE" envDefault:"0"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RateLimit       float64       `env:"RATE_LIMIT" envDefault:"4"`
	DryRun          bool          `env:"DRY_RUN"`
	DeltaMigration  bool          `env:"DELTA_MIGRATION"`
	PrimaryKey      string        `env:"PRIMARY_KEY" envDefault:"email"`
	IdentifierField string        `env:"IDENTIFIER_FIELD" envDefault:"email"`
	UpdateForbidden []string      `env:"UPDATE_FORBIDDEN" envSeparator:","`

	// Classification
	RetryAPICodes  []int `env:"RETRY_API_CODES" envSeparator:"," envDefault:"403,500,504,510"`
	RetryHTTPCodes []int `env:"RETRY_HTTP_CODES" envSeparator:"," envDefault:"403,500,501,502"`

	// Transforms
	Transforms        []string `env:"TRANSFORMS" envSeparator:"," envDefault:"password=password,birthday=date,gender=gender,optIn.status=boolean,clients=plural,shippingAddresses=plural"`
	DateLayout        string   `env:"DATE_LAYOUT" envDefault:"1/2/2006"`
	PasswordType      string   `env:"PASSWORD_TYPE" envDefault:"password-phpass-md5"`
	PasswordSaltBytes int      `env:"PASSWORD_SALT_BYTES" envDefault:"0"`

	// Logging and metrics
	LogDir      string `env:"LOG_DIR" envDefault:"logs"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// LoadEnv loads the env files that exist, in order. Variables already set
// in the process environment win. Returns the number of files loaded.
func LoadEnv(envFiles ...string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files, then binds DATALOAD_* variables over the defaults.
// The result is not validated; callers apply flag overrides first.
func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.TypeName == "" {
		return errors.New("entity type name is required")
	}

	if c.BatchSize <= 2 {
		return fmt.Errorf("%w: got %d", reader.ErrInvalidBatchSize, c.BatchSize)
	}

	if c.StartAt < 1 {
		return fmt.Errorf("%w: got %d", reader.ErrInvalidStartAt, c.StartAt)
	}

	if c.Workers < 1 {
		return errors.New("worker count must be positive")
	}

	if c.QueueSize < 0 {
		return errors.New("queue size cannot be negative")
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if c.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}

	if c.PrimaryKey == "" {
		return errors.New("primary key is required")
	}

	if c.PasswordSaltBytes < 0 {
		return errors.New("password salt length cannot be negative")
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	return nil
}

// ValidateCredentials ensures the entity API can be called
func (c *Config) ValidateCredentials() error {
	if c.API.URL == "" || c.API.ClientID == "" || c.API.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// TransformOptions returns the settings the built-in transforms are built with
func (c *Config) TransformOptions() transform.Options {
	opts := transform.DefaultOptions()
	opts.DateLayout = c.DateLayout
	opts.PasswordType = c.PasswordType
	opts.PasswordSaltBytes = c.PasswordSaltBytes
	return opts
}

// Registry resolves the configured field=kind bindings, failing on the
// first unknown kind.
func (c *Config) Registry() (*transform.Registry, error) {
	bindings, err := transform.ParseBindings(c.Transforms)
	if err != nil {
		return nil, err
	}
	return transform.Resolve(bindings, c.TransformOptions())
}
