// pkg/extract/extract.go
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/model"
	"github.com/David-Botos/entity-dataload/pkg/sink"
)

// ErrNoQuery is returned when neither a query nor a table is given
var ErrNoQuery = errors.New("either a query or a table is required")

// Query selects the records to extract. SQL wins over Table.
type Query struct {
	SQL     string
	Table   string   // "table" or "schema.table"
	Columns []string // Empty selects every column
	Limit   int
}

// Build returns the statement to run. Table and column identifiers are
// quoted, so they must be spelled with the case the source stores them in.
func (q Query) Build() (string, error) {
	if strings.TrimSpace(q.SQL) != "" {
		return q.SQL, nil
	}
	if strings.TrimSpace(q.Table) == "" {
		return "", ErrNoQuery
	}

	parts := strings.Split(q.Table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table %q, want table or schema.table", q.Table)
	}
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table %q, want table or schema.table", q.Table)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}

	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = pq.QuoteIdentifier(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", cols, strings.Join(parts, "."))
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return stmt, nil
}

// Result summarizes one export
type Result struct {
	Path     string
	Columns  []string
	Rows     int64
	Duration time.Duration
}

// Exporter streams a result set into an import file
type Exporter struct {
	db        *sqlx.DB
	renderer  Renderer
	timeout   time.Duration
	chunkSize int
	logger    *zap.Logger
}

// NewExporter creates an exporter reading from db
func NewExporter(db *sqlx.DB, logger *zap.Logger) *Exporter {
	return &Exporter{
		db:        db,
		renderer:  NewRenderer("1/2/2006"),
		chunkSize: 500,
		logger:    logger.Named("extract"),
	}
}

// WithDateLayout sets the layout temporal values are written with
func (e *Exporter) WithDateLayout(layout string) *Exporter {
	e.renderer = NewRenderer(layout)
	return e
}

// WithTimeout bounds the whole export; zero means no limit
func (e *Exporter) WithTimeout(timeout time.Duration) *Exporter {
	e.timeout = timeout
	return e
}

// Export runs q and writes every row to outPath, header first
func (e *Exporter) Export(ctx context.Context, q Query, outPath string) (*Result, error) {
	stmt, err := q.Build()
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	e.logger.Info("Starting extraction", zap.String("query", stmt), zap.String("out", outPath))

	rows, err := e.db.QueryxContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to run extraction query: %w", err)
	}
	defer rows.Close()

	md, err := metadata(rows)
	if err != nil {
		return nil, err
	}

	w, err := sink.Create(outPath, md.Names())
	if err != nil {
		return nil, err
	}
	defer w.Close()

	result := &Result{Path: outPath, Columns: md.Names()}
	chunk := make([][]string, 0, e.chunkSize)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", result.Rows+1, err)
		}
		fields, err := e.renderer.RenderRow(md, values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", result.Rows+1, err)
		}
		chunk = append(chunk, fields)
		result.Rows++

		if len(chunk) == e.chunkSize {
			if err := w.WriteAll(chunk); err != nil {
				return nil, err
			}
			chunk = chunk[:0]
			e.logger.Debug("Rows extracted", zap.Int64("rows", result.Rows))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extraction rows: %w", err)
	}
	if len(chunk) > 0 {
		if err := w.WriteAll(chunk); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	e.logger.Info("Extraction completed",
		zap.Int64("rows", result.Rows),
		zap.Int("columns", len(result.Columns)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func metadata(rows *sqlx.Rows) (*model.TableMetadata, error) {
	types, err := rows.ColumnTypes()
	if err == nil {
		return model.MetadataFromColumnTypes(types), nil
	}
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	return model.MetadataFromNames(names), nil
}
