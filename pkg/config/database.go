// pkg/config/database.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/snowflakedb/gosnowflake"
)

// Supported legacy sources for extract
const (
	SourceSnowflake = "snowflake"
	SourcePostgres  = "postgres"
)

// PoolConfig holds database/sql connection pool settings
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string `env:"SNOWFLAKE_USER,required,notEmpty"`
	Password      string `env:"SNOWFLAKE_PASSWORD,required,notEmpty"`
	Account       string `env:"SNOWFLAKE_ACCOUNT,required,notEmpty"`
	Warehouse     string `env:"SNOWFLAKE_WAREHOUSE,required,notEmpty"`
	Database      string `env:"SNOWFLAKE_DATABASE"`
	Schema        string `env:"SNOWFLAKE_SCHEMA"`
	Role          string `env:"SNOWFLAKE_ROLE"`
	Authenticator string `env:"SNOWFLAKE_AUTHENTICATOR" envDefault:"snowflake"`

	// Connection pool settings
	MaxOpenConns    int           `env:"SNOWFLAKE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"SNOWFLAKE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"SNOWFLAKE_CONN_MAX_LIFETIME" envDefault:"10m"`
	ConnMaxIdleTime time.Duration `env:"SNOWFLAKE_CONN_MAX_IDLE_TIME" envDefault:"5m"`

	// Query timeout
	QueryTimeout time.Duration `env:"SNOWFLAKE_QUERY_TIMEOUT" envDefault:"5m"`
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER,required,notEmpty"`
	Password string `env:"POSTGRES_PASSWORD,required,notEmpty"`
	Database string `env:"POSTGRES_DB,required,notEmpty"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Connection pool settings
	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"POSTGRES_CONN_MAX_IDLE_TIME" envDefault:"10m"`

	// Statement timeout
	StatementTimeout time.Duration `env:"POSTGRES_STATEMENT_TIMEOUT" envDefault:"5m"`
}

// LoadSnowflakeConfig loads Snowflake configuration from environment variables
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	cfg := &SnowflakeConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
	}
	return cfg, nil
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	cfg := &PostgresConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
	}
	return cfg, nil
}

// AuthType converts the configured authenticator name
func (c *SnowflakeConfig) AuthType() gosnowflake.AuthType {
	switch strings.ToLower(c.Authenticator) {
	case "oauth":
		return gosnowflake.AuthTypeOAuth
	case "externalbrowser":
		return gosnowflake.AuthTypeExternalBrowser
	case "username_password_mfa":
		return gosnowflake.AuthTypeUsernamePasswordMFA
	case "jwt":
		return gosnowflake.AuthTypeJwt
	case "token":
		return gosnowflake.AuthTypeTokenAccessor
	case "okta":
		return gosnowflake.AuthTypeOkta
	default:
		return gosnowflake.AuthTypeSnowflake
	}
}

// DriverConfig returns the gosnowflake configuration for this source
func (c *SnowflakeConfig) DriverConfig() *gosnowflake.Config {
	return &gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Password:      c.Password,
		Database:      c.Database,
		Schema:        c.Schema,
		Warehouse:     c.Warehouse,
		Role:          c.Role,
		Authenticator: c.AuthType(),
	}
}

// ConnectionString returns a formatted Snowflake DSN
func (c *SnowflakeConfig) ConnectionString() (string, error) {
	dsn, err := gosnowflake.DSN(c.DriverConfig())
	if err != nil {
		return "", fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}
	return dsn, nil
}

// Pool returns the connection pool settings
func (c *SnowflakeConfig) Pool() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
	if c.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", c.StatementTimeout.Milliseconds())
	}
	return dsn
}

// Pool returns the connection pool settings
func (c *PostgresConfig) Pool() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}
