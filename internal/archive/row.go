// Package archive converts line-protocol backups into long-format Parquet
// files. Each point becomes one row per field, so files are queryable by
// column stores without schema-per-measurement handling.
package archive

import (
	"sort"

	"github.com/xtxerr/fluxdump/internal/lineprotocol"
)

// Field type names as stored in the type column.
const (
	TypeFloat   = "float"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeString  = "string"
)

// Row is one field of one point in long format. Exactly one of the value
// columns is meaningful, selected by Type.
type Row struct {
	Measurement string            `parquet:"measurement,zstd"`
	Tags        map[string]string `parquet:"tags"`
	Field       string            `parquet:"field,zstd"`
	Type        string            `parquet:"type,zstd"`
	FloatValue  float64           `parquet:"float_value,optional"`
	IntValue    int64             `parquet:"int_value,optional"`
	BoolValue   bool              `parquet:"bool_value,optional"`
	StringValue string            `parquet:"string_value,optional,zstd"`
	Timestamp   int64             `parquet:"timestamp"`
}

// PointRows converts a point to rows, one per field in sorted field order so
// output is deterministic. All rows of one point are consecutive; readers
// rely on that to reassemble points.
func PointRows(p *lineprotocol.Point) []Row {
	fields := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	rows := make([]Row, 0, len(fields))
	for _, name := range fields {
		row := Row{
			Measurement: p.Measurement,
			Tags:        p.Tags,
			Field:       name,
			Timestamp:   p.Timestamp,
		}
		switch v := p.Fields[name]; v.Type {
		case lineprotocol.FieldFloat:
			row.Type = TypeFloat
			row.FloatValue = v.Float
		case lineprotocol.FieldInteger:
			row.Type = TypeInteger
			row.IntValue = v.Int
		case lineprotocol.FieldBoolean:
			row.Type = TypeBoolean
			row.BoolValue = v.Bool
		case lineprotocol.FieldString:
			row.Type = TypeString
			row.StringValue = v.Str
		}
		rows = append(rows, row)
	}
	return rows
}

// rowValue converts a row's value columns back to a typed field value.
func rowValue(r *Row) lineprotocol.FieldValue {
	switch r.Type {
	case TypeInteger:
		return lineprotocol.Integer(r.IntValue)
	case TypeBoolean:
		return lineprotocol.Boolean(r.BoolValue)
	case TypeString:
		return lineprotocol.Str(r.StringValue)
	default:
		return lineprotocol.Float(r.FloatValue)
	}
}

func tagsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
