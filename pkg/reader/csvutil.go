// pkg/reader/csvutil.go
package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrMissingHeader is returned for files without a header row
var ErrMissingHeader = errors.New("missing header row")

// CSVFile is an open delimited file with its header already consumed
type CSVFile struct {
	Header []string
	Reader *csv.Reader
	file   *os.File
	index  map[string]int
}

// OpenCSV opens path, strips a leading byte order mark and reads the header
func OpenCSV(path string, delimiter rune) (*CSVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := newCSVReader(f, delimiter)
	header, err := readHeader(r)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &CSVFile{
		Header: header,
		Reader: r,
		file:   f,
		index:  headerIndex(header),
	}, nil
}

// Column returns the index of name in the header
func (c *CSVFile) Column(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// RequireColumns fails if any of names is absent from the header
func (c *CSVFile) RequireColumns(names ...string) error {
	for _, name := range names {
		if _, ok := c.index[name]; !ok {
			return fmt.Errorf("missing required header column: %s", name)
		}
	}
	return nil
}

// Close releases the underlying file
func (c *CSVFile) Close() error {
	return c.file.Close()
}

// newCSVReader wraps r in a BOM-stripping decoder and a lenient csv.Reader
func newCSVReader(r io.Reader, delimiter rune) *csv.Reader {
	decoded := transform.NewReader(r, unicode.UTF8BOM.NewDecoder())

	cr := csv.NewReader(decoded)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrMissingHeader
		}
		return nil, err
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
	}
	return h, nil
}

func headerIndex(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, name := range header {
		m[name] = i
	}
	return m
}
