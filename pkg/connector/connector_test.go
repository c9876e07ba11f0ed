package connector

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/entity-dataload/pkg/config"
)

func newMockDB(t *testing.T, monitorPings bool) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(monitorPings))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestApplyConnectionSettings(t *testing.T) {
	db, _ := newMockDB(t, false)

	ApplyConnectionSettings(db, config.PoolConfig{MaxOpenConns: 7, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 7, GetConnectionStats(db).MaxOpenConns)

	// Zero values leave the pool untouched
	ApplyConnectionSettings(db, config.PoolConfig{})
	assert.Equal(t, 7, GetConnectionStats(db).MaxOpenConns)
}

func TestPingWithTimeout(t *testing.T) {
	db, mock := newMockDB(t, true)

	mock.ExpectPing()
	assert.NoError(t, PingWithTimeout(context.Background(), db, time.Second))

	mock.ExpectPing().WillDelayFor(200 * time.Millisecond)
	err := PingWithTimeout(context.Background(), db, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestPostgresValidate(t *testing.T) {
	db, mock := newMockDB(t, false)
	mock.ExpectQuery("SELECT version()").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 15.4"))
	mock.ExpectQuery("SHOW transaction_read_only").
		WillReturnRows(sqlmock.NewRows([]string{"transaction_read_only"}).AddRow("on"))

	c := &PostgresConnector{
		db:     db,
		logger: zaptest.NewLogger(t),
		cfg:    &config.PostgresConfig{Host: "localhost", Database: "legacy", StatementTimeout: time.Minute},
	}

	require.NoError(t, c.Validate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, config.SourcePostgres, c.Name())
	assert.Equal(t, time.Minute, c.QueryTimeout())
}

func TestSnowflakeValidateRejectsWrongDatabase(t *testing.T) {
	db, mock := newMockDB(t, false)
	mock.ExpectQuery("SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").
		WillReturnRows(sqlmock.NewRows([]string{"role", "database", "warehouse"}).
			AddRow("LOADER", "OTHER_DB", "COMPUTE_WH"))

	c := &SnowflakeConnector{
		db:     db,
		logger: zaptest.NewLogger(t),
		cfg:    &config.SnowflakeConfig{Database: "LEGACY"},
	}

	err := c.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connected to wrong database")
}

func TestFactoryRejectsUnknownSource(t *testing.T) {
	f := NewConnectorFactory(zaptest.NewLogger(t))
	_, err := f.Create(context.Background(), "oracle")
	assert.Error(t, err)
}

func TestFactoryRequiresSourceConfig(t *testing.T) {
	t.Setenv("POSTGRES_USER", "")
	f := NewConnectorFactory(zaptest.NewLogger(t))
	_, err := f.Create(context.Background(), config.SourcePostgres)
	assert.Error(t, err)
}
