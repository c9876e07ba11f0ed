// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/config"
)

// ConnectorFactory creates source connectors from the environment
type ConnectorFactory struct {
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{logger: logger}
}

// Create loads the configuration of source and connects to it
func (f *ConnectorFactory) Create(ctx context.Context, source string) (DatabaseConnector, error) {
	switch source {
	case config.SourceSnowflake:
		c, err := f.CreateSnowflakeConnector(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.SourcePostgres:
		c, err := f.CreatePostgresConnector(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported source %q (want %s or %s)", source, config.SourceSnowflake, config.SourcePostgres)
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	f.logger.Info("Creating Snowflake connector")

	cfg, err := config.LoadSnowflakeConfig()
	if err != nil {
		return nil, err
	}

	connector, err := NewSnowflakeConnector(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}
	return connector, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	cfg, err := config.LoadPostgresConfig()
	if err != nil {
		return nil, err
	}

	connector, err := NewPostgresConnector(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}
	return connector, nil
}
