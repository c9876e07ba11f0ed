// pkg/reader/encoding.go
package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodingError reports the first line of a file that is not valid UTF-8
type EncodingError struct {
	Path string
	Line int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: line %d is not valid UTF-8", e.Path, e.Line)
}

// EncodingReport is the result of scanning a file
type EncodingReport struct {
	Lines  int  // Physical lines scanned
	HasBOM bool // File starts with a UTF-8 byte order mark
}

// ValidateFile scans path line by line and returns an *EncodingError at the
// first line that does not decode as UTF-8.
func ValidateFile(path string) (EncodingReport, error) {
	var report EncodingReport

	f, err := os.Open(path)
	if err != nil {
		return report, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			report.Lines++
			if report.Lines == 1 && bytes.HasPrefix(line, utf8BOM) {
				report.HasBOM = true
				line = line[len(utf8BOM):]
			}
			if !utf8.Valid(line) {
				return report, &EncodingError{Path: path, Line: report.Lines}
			}
		}
		if err == io.EOF {
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
}
