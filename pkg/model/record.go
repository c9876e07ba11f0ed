// pkg/model/record.go
package model

import "strings"

// Record is one transformed source row keyed by target attribute name.
// Dot-notation keys have already been expanded into nested maps.
type Record map[string]interface{}

// Lookup resolves a dot-notation path against the record.
// Returns nil, false if any segment is missing or not a map.
func (r Record) Lookup(path string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(r)
	for _, segment := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// LookupString returns the value at path formatted as a string, or ""
func (r Record) LookupString(path string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}

// Without returns a shallow copy of the record minus the given top-level keys
func (r Record) Without(keys ...string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Batch is an immutable group of consecutive source rows.
type Batch struct {
	ID        int        // Sequential batch number, starting at 1
	Records   []Record   // Transformed records
	Originals [][]string // Raw rows, 1:1 with Records
	StartLine int        // First source line in the batch (header is line 1)
	EndLine   int        // Last source line in the batch, inclusive
}

// Len returns the number of records in the batch
func (b *Batch) Len() int {
	return len(b.Records)
}

// LineOf returns the absolute source line of the i-th record
func (b *Batch) LineOf(i int) int {
	return b.StartLine + i
}
