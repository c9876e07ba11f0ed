package extract

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/entity-dataload/pkg/reader"
)

func TestQueryBuild(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		want    string
		wantErr bool
	}{
		{"raw sql wins", Query{SQL: "SELECT 1", Table: "users"}, "SELECT 1", false},
		{"table", Query{Table: "users"}, `SELECT * FROM "users"`, false},
		{"schema and columns", Query{Table: "crm.users", Columns: []string{"email", "givenName"}, Limit: 10},
			`SELECT "email", "givenName" FROM "crm"."users" LIMIT 10`, false},
		{"quotes are escaped", Query{Table: `we"ird`}, `SELECT * FROM "we""ird"`, false},
		{"nothing", Query{}, "", true},
		{"too many parts", Query{Table: "a.b.c"}, "", true},
		{"empty part", Query{Table: "a."}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query.Build()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Query{}.Build()
	assert.ErrorIs(t, err, ErrNoQuery)
}

func newExporter(t *testing.T) (*Exporter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewExporter(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t)), mock
}

func TestExport(t *testing.T) {
	e, mock := newExporter(t)
	e.WithDateLayout("2006-01-02").WithTimeout(time.Second)
	e.chunkSize = 2

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("email").OfType("VARCHAR", ""),
		mock.NewColumn("birthday").OfType("DATE", time.Time{}).Nullable(true),
		mock.NewColumn("visits").OfType("NUMBER", int64(0)),
		mock.NewColumn("profile").OfType("VARIANT", []byte(nil)),
	).
		AddRow("a@example.com", time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC), int64(3), []byte(`{"city":"Oslo"}`)).
		AddRow("b@example.com", nil, int64(0), nil).
		AddRow("c@example.com", time.Date(2001, 12, 31, 0, 0, 0, 0, time.UTC), int64(12), []byte(`[]`))
	mock.ExpectQuery(`SELECT * FROM "crm"."users"`).WillReturnRows(rows)

	out := filepath.Join(t.TempDir(), "users.csv")
	res, err := e.Export(context.Background(), Query{Table: "crm.users"}, out)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, []string{"email", "birthday", "visits", "profile"}, res.Columns)
	assert.Equal(t, out, res.Path)

	// The file must read back through the import reader
	f, err := reader.OpenCSV(out, ',')
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, res.Columns, f.Header)

	got, err := f.Reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"a@example.com", "1990-01-02", "3", `{"city":"Oslo"}`},
		{"b@example.com", "", "0", ""},
		{"c@example.com", "2001-12-31", "12", "[]"},
	}, got)
}

func TestExportQueryError(t *testing.T) {
	e, mock := newExporter(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("warehouse suspended"))

	out := filepath.Join(t.TempDir(), "out.csv")
	_, err := e.Export(context.Background(), Query{SQL: "SELECT 1"}, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse suspended")
	assert.NoFileExists(t, out)
}

func TestExportRowError(t *testing.T) {
	e, mock := newExporter(t)
	rows := mock.NewRowsWithColumnDefinition(mock.NewColumn("email").OfType("VARCHAR", "")).
		AddRow("a@example.com").
		AddRow("b@example.com").
		RowError(1, errors.New("network reset"))
	mock.ExpectQuery("SELECT email FROM users").WillReturnRows(rows)

	_, err := e.Export(context.Background(), Query{SQL: "SELECT email FROM users"}, filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network reset")
}
