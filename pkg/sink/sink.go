// pkg/sink/sink.go
package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Headers of the outcome logs
var (
	SuccessHeader         = []string{"batch", "line", "remote_id", "identifying_key"}
	FailHeader            = []string{"batch", "line", "identifying_key", "error"}
	HandoffHeader         = []string{"batch", "original_line", "record"}
	UpdateFailHeader      = []string{"batch", "line", "identifying_key", "error"}
	RollbackSuccessHeader = []string{"batch", "line", "remote_id"}
	RollbackFailHeader    = []string{"batch", "line", "identifying_key", "error"}
)

// UpdateSuccessHeader names the primary key column after the configured key
func UpdateSuccessHeader(primaryKey string) []string {
	return []string{"batch", "line", primaryKey}
}

// Writer is an append-only CSV file shared by many goroutines. Each row is
// written and flushed under the writer's lock so rows never interleave.
type Writer struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	csv       *csv.Writer
	delimiter rune
	rows      int64
}

// Option configures how a sink file is written or read
type Option func(*options)

type options struct {
	delimiter rune
}

// WithDelimiter sets the field delimiter; the default is a comma
func WithDelimiter(delimiter rune) Option {
	return func(o *options) {
		if delimiter != 0 {
			o.delimiter = delimiter
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{delimiter: ','}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Create truncates path, writes header and returns the writer
func Create(path string, header []string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return newWriter(f, header, applyOptions(opts))
}

// CreateTemp creates a uniquely named file in dir (see os.CreateTemp)
func CreateTemp(dir, pattern string, header []string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	return newWriter(f, header, applyOptions(opts))
}

func newWriter(f *os.File, header []string, o options) (*Writer, error) {
	w := &Writer{
		path:      f.Name(),
		file:      f,
		csv:       csv.NewWriter(f),
		delimiter: o.delimiter,
	}
	w.csv.Comma = o.delimiter
	if err := w.csv.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", w.path, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", w.path, err)
	}
	return w, nil
}

// Write appends one row
func (w *Writer) Write(fields ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("write to closed sink %s", w.path)
	}
	if err := w.csv.Write(fields); err != nil {
		return fmt.Errorf("failed to write to %s: %w", w.path, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to write to %s: %w", w.path, err)
	}
	w.rows++
	return nil
}

// WriteAll appends rows as one uninterrupted block
func (w *Writer) WriteAll(rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("write to closed sink %s", w.path)
	}
	for _, row := range rows {
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("failed to write to %s: %w", w.path, err)
		}
		w.rows++
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to write to %s: %w", w.path, err)
	}
	return nil
}

// Rows returns the number of rows written since creation
func (w *Writer) Rows() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Delimiter returns the field delimiter of the file
func (w *Writer) Delimiter() rune {
	return w.delimiter
}

// Path returns the file path
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	w.file = nil
	return errors.Join(flushErr, closeErr)
}

// CountRecords returns the number of CSV records in path, minus the header.
// Quoted fields with embedded newlines count once.
func CountRecords(path string, opts ...Option) (int64, error) {
	o := applyOptions(opts)
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = o.delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	var n int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to count records in %s: %w", path, err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil
}

// RemoveIfEmpty deletes path when it holds no records beyond the header
func RemoveIfEmpty(path string, opts ...Option) (bool, error) {
	n, err := CountRecords(path, opts...)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	return true, os.Remove(path)
}

// StampLayout is the timestamp embedded in run file names
const StampLayout = "Jan_02_2006_15_04_05"

// File kinds produced by a run
const (
	KindSuccess         = "success"
	KindFail            = "fail"
	KindRetry           = "retry"
	KindUpdateSuccess   = "update_success"
	KindUpdateFail      = "update_fail"
	KindRollbackSuccess = "rollback_success"
	KindRollbackFail    = "rollback_fail"
)

// RunFiles names the files of one run under a common directory and stamp
type RunFiles struct {
	Dir   string
	Stamp string
}

// NewRunFiles stamps file names with start
func NewRunFiles(dir string, start time.Time) RunFiles {
	return RunFiles{Dir: dir, Stamp: start.Format(StampLayout)}
}

// Path returns the CSV path for kind
func (f RunFiles) Path(kind string) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%s.csv", kind, f.Stamp))
}

// LogPath returns the path of the run's structured log
func (f RunFiles) LogPath() string {
	return filepath.Join(f.Dir, fmt.Sprintf("dataload_%s.log", f.Stamp))
}
