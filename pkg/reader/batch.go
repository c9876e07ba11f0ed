// pkg/reader/batch.go
package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/model"
	"github.com/David-Botos/entity-dataload/pkg/transform"
)

var (
	// ErrInvalidBatchSize is returned for batch sizes of 2 or less
	ErrInvalidBatchSize = errors.New("batch size must be greater than 2")
	// ErrInvalidStartAt is returned for a start record below 1
	ErrInvalidStartAt = errors.New("start record must be 1 or greater")
)

// BatchReader streams a delimited file as fixed-size batches of transformed
// records. Line numbers are absolute: the header is line 1 and the first
// data row is line 2. A reader is single-pass and not safe for concurrent use.
type BatchReader struct {
	path      string
	batchSize int
	startAt   int
	delimiter rune
	registry  *transform.Registry
	logger    *zap.Logger

	validated bool
	file      *os.File
	csv       *csv.Reader
	header    []string

	line    int
	batchID int
	pending *model.Batch
	err     error
	done    bool
}

// NewBatchReader validates the arguments and returns a reader for path.
// startAt is the 1-based data record to begin with.
func NewBatchReader(
	path string,
	batchSize int,
	startAt int,
	registry *transform.Registry,
	logger *zap.Logger,
) (*BatchReader, error) {
	if batchSize <= 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	if startAt < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidStartAt, startAt)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file: %w", err)
	}
	if registry == nil {
		registry = transform.NewRegistry()
	}

	return &BatchReader{
		path:      path,
		batchSize: batchSize,
		startAt:   startAt,
		delimiter: ',',
		registry:  registry,
		logger:    logger.Named("reader").With(zap.String("file", path)),
	}, nil
}

// WithDelimiter sets the field delimiter; must be called before reading
func (r *BatchReader) WithDelimiter(delimiter rune) *BatchReader {
	r.delimiter = delimiter
	return r
}

// Delimiter returns the field delimiter
func (r *BatchReader) Delimiter() rune {
	return r.delimiter
}

// ValidateEncoding scans the whole file for invalid UTF-8.
// Next calls it automatically if it has not been run.
func (r *BatchReader) ValidateEncoding() error {
	r.logger.Info("Validating UTF-8 encoding")

	report, err := ValidateFile(r.path)
	if err != nil {
		var encErr *EncodingError
		if errors.As(err, &encErr) {
			r.logger.Error("Invalid UTF-8 sequence", zap.Int("line", encErr.Line))
		}
		return err
	}

	if report.HasBOM {
		r.logger.Info("Byte order mark detected, skipping it")
	}
	r.validated = true
	return nil
}

// Header returns the header row, opening the file if needed
func (r *BatchReader) Header() ([]string, error) {
	if err := r.open(); err != nil {
		return nil, err
	}
	return r.header, nil
}

// Next returns the next batch, or io.EOF once the file is exhausted.
// A read or transform error is sticky: every later call returns it again.
func (r *BatchReader) Next() (*model.Batch, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.done {
		return nil, io.EOF
	}
	if err := r.open(); err != nil {
		r.err = err
		return nil, err
	}

	for {
		row, err := r.csv.Read()
		if err == io.EOF {
			r.done = true
			if out := r.flush(); out != nil {
				return out, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			r.err = fmt.Errorf("line %d: %w", r.line+1, err)
			return nil, r.err
		}

		r.line++
		line := r.line
		if line < r.startAt+1 {
			continue
		}

		// Boundaries follow absolute line numbers so a resumed run lines up
		// with the batches of the original run.
		var out *model.Batch
		if line > 2 && (line-2)%r.batchSize == 0 {
			out = r.flush()
		}

		record, err := r.transformRow(line, row)
		if err != nil {
			r.pending = nil
			r.err = err
			if out != nil {
				return out, nil
			}
			return nil, err
		}
		r.appendRecord(line, record, row)

		if out != nil {
			return out, nil
		}
	}
}

// Line returns the last source line consumed
func (r *BatchReader) Line() int {
	return r.line
}

// Close releases the underlying file
func (r *BatchReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *BatchReader) open() error {
	if r.csv != nil {
		return nil
	}
	if !r.validated {
		if err := r.ValidateEncoding(); err != nil {
			return err
		}
	}

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}

	cr := newCSVReader(f, r.delimiter)
	header, err := readHeader(cr)
	if err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", r.path, err)
	}

	r.file = f
	r.csv = cr
	r.header = header
	r.line = 1

	r.logger.Info("Opened input file",
		zap.Int("columns", len(header)),
		zap.Int("batchSize", r.batchSize),
		zap.Int("startAt", r.startAt))
	return nil
}

// transformRow applies the registry column by column in header order and
// expands dot-notation keys. Missing trailing fields are treated as empty.
func (r *BatchReader) transformRow(line int, row []string) (model.Record, error) {
	if len(row) > len(r.header) {
		return nil, fmt.Errorf("line %d: row has %d fields, header has %d", line, len(row), len(r.header))
	}

	flat := make(map[string]interface{}, len(r.header))
	for i, field := range r.header {
		raw := ""
		if i < len(row) {
			raw = row[i]
		}
		value, err := r.registry.Apply(field, line, raw)
		if err != nil {
			return nil, err
		}
		flat[field] = value
	}

	return model.ExpandRecord(flat), nil
}

func (r *BatchReader) appendRecord(line int, record model.Record, row []string) {
	if r.pending == nil {
		r.pending = &model.Batch{StartLine: line}
	}
	original := make([]string, len(row))
	copy(original, row)

	r.pending.Records = append(r.pending.Records, record)
	r.pending.Originals = append(r.pending.Originals, original)
	r.pending.EndLine = line
}

// flush returns the pending batch with the next id, or nil if nothing is pending
func (r *BatchReader) flush() *model.Batch {
	if r.pending == nil || r.pending.Len() == 0 {
		return nil
	}
	r.batchID++
	out := r.pending
	out.ID = r.batchID
	r.pending = nil

	r.logger.Debug("Batch read",
		zap.Int("batch", out.ID),
		zap.Int("startLine", out.StartLine),
		zap.Int("endLine", out.EndLine),
		zap.Int("records", out.Len()))
	return out
}
