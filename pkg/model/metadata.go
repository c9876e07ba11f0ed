// pkg/model/metadata.go
package model

import (
	"database/sql"
	"strings"
)

// TableMetadata describes the columns of an extraction result set
type TableMetadata struct {
	Schema  string   // Schema name, empty for ad hoc queries
	Table   string   // Table name, empty for ad hoc queries
	Columns []Column // Column definitions, in result order
}

// Column represents metadata about a source column
type Column struct {
	Name     string // Column name as reported by the driver
	DataType string // Database type name, upper case; may be empty
	Nullable bool   // Whether column allows NULL values
}

// MetadataFromColumnTypes builds metadata from a result set description
func MetadataFromColumnTypes(types []*sql.ColumnType) *TableMetadata {
	md := &TableMetadata{Columns: make([]Column, len(types))}
	for i, ct := range types {
		nullable, _ := ct.Nullable()
		md.Columns[i] = Column{
			Name:     ct.Name(),
			DataType: strings.ToUpper(ct.DatabaseTypeName()),
			Nullable: nullable,
		}
	}
	return md
}

// MetadataFromNames builds metadata for columns of unknown type
func MetadataFromNames(names []string) *TableMetadata {
	md := &TableMetadata{Columns: make([]Column, len(names))}
	for i, name := range names {
		md.Columns[i] = Column{Name: name, Nullable: true}
	}
	return md
}

// Names returns the column names in order
func (tm *TableMetadata) Names() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// IsStructured reports whether the column holds JSON documents
// (Snowflake ARRAY, OBJECT and VARIANT, PostgreSQL json and jsonb)
func (col *Column) IsStructured() bool {
	switch col.DataType {
	case "ARRAY", "OBJECT", "VARIANT", "JSON", "JSONB":
		return true
	}
	return strings.HasPrefix(col.DataType, "_") // PostgreSQL array types
}

// IsTemporal reports whether the column holds dates or timestamps
func (col *Column) IsTemporal() bool {
	return col.DataType == "DATE" || strings.HasPrefix(col.DataType, "TIMESTAMP")
}
