// pkg/extract/render.go
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/David-Botos/entity-dataload/pkg/model"
)

// Renderer turns driver values into CSV fields the import transforms can read
type Renderer struct {
	// Go layout for dates and timestamps; must match the import date layout
	DateLayout string
}

// NewRenderer creates a renderer using dateLayout for temporal values
func NewRenderer(dateLayout string) Renderer {
	return Renderer{DateLayout: dateLayout}
}

// Render converts one value. NULL becomes an empty field, structured values
// become JSON and times use the date layout in UTC.
func (r Renderer) Render(col model.Column, value interface{}) (string, error) {
	if col.IsStructured() {
		switch v := value.(type) {
		case string:
			return compactJSON([]byte(v))
		case []byte:
			return compactJSON(v)
		}
	}

	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		// Drivers hand JSON and text columns over as raw bytes
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case time.Time:
		return v.UTC().Format(r.DateLayout), nil
	case fmt.Stringer:
		if !col.IsStructured() {
			return v.String(), nil
		}
	}

	// Maps, slices and driver specific types
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("column %s: cannot render %T: %w", col.Name, value, err)
	}
	return string(b), nil
}

// RenderRow renders a scanned row in column order
func (r Renderer) RenderRow(md *model.TableMetadata, values []interface{}) ([]string, error) {
	if len(values) != len(md.Columns) {
		return nil, fmt.Errorf("row has %d values, result set has %d columns", len(values), len(md.Columns))
	}
	fields := make([]string, len(values))
	for i, v := range values {
		s, err := r.Render(md.Columns[i], v)
		if err != nil {
			return nil, err
		}
		fields[i] = s
	}
	return fields, nil
}

// compactJSON puts a document on one line. Snowflake returns VARIANT,
// ARRAY and OBJECT values pretty printed. Text that is not JSON is kept as
// a JSON string.
func compactJSON(doc []byte) (string, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err == nil {
		return buf.String(), nil
	}
	b, err := json.Marshal(string(doc))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
