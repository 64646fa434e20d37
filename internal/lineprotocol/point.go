// Package lineprotocol implements the textual point-per-line encoding used by
// the backup files: measurement, tag set, field set and optional nanosecond
// timestamp. Encoding and decoding are exact inverses of each other, including
// field types, so a backup/restore round trip reproduces the original points.
package lineprotocol

import "time"

// FieldType indicates the type of a field value.
type FieldType int

const (
	// FieldFloat is a 64-bit floating point field.
	FieldFloat FieldType = iota
	// FieldInteger is a 64-bit signed integer field, encoded with an 'i' suffix.
	FieldInteger
	// FieldBoolean is a boolean field, encoded as true/false.
	FieldBoolean
	// FieldString is a string field, encoded double-quoted.
	FieldString
)

// String returns a human-readable representation of the FieldType.
func (t FieldType) String() string {
	switch t {
	case FieldFloat:
		return "float"
	case FieldInteger:
		return "integer"
	case FieldBoolean:
		return "boolean"
	case FieldString:
		return "string"
	default:
		return "unknown"
	}
}

// FieldValue is one typed field value. Only the member matching Type is
// meaningful.
type FieldValue struct {
	Type  FieldType
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

// Integer returns an integer FieldValue.
func Integer(v int64) FieldValue { return FieldValue{Type: FieldInteger, Int: v} }

// Float returns a float FieldValue.
func Float(v float64) FieldValue { return FieldValue{Type: FieldFloat, Float: v} }

// Boolean returns a boolean FieldValue.
func Boolean(v bool) FieldValue { return FieldValue{Type: FieldBoolean, Bool: v} }

// Str returns a string FieldValue.
func Str(v string) FieldValue { return FieldValue{Type: FieldString, Str: v} }

// Equal reports whether two field values have the same type and value.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case FieldInteger:
		return v.Int == o.Int
	case FieldFloat:
		return v.Float == o.Float
	case FieldBoolean:
		return v.Bool == o.Bool
	case FieldString:
		return v.Str == o.Str
	default:
		return false
	}
}

// Point represents one observation: a measurement name, a set of tags, a set
// of typed fields and an optional timestamp in nanoseconds since the epoch.
// A zero Timestamp means "absent" (the target assigns ingestion time).
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]FieldValue
	Timestamp   int64
}

// Time returns the timestamp as a time.Time. Only meaningful when
// Timestamp is non-zero.
func (p *Point) Time() time.Time {
	return time.Unix(0, p.Timestamp).UTC()
}

// HasTimestamp reports whether the point carries an explicit timestamp.
func (p *Point) HasTimestamp() bool {
	return p.Timestamp != 0
}

// Equal reports whether two points are identical: same measurement, same tag
// set, same typed field set and same timestamp.
func (p *Point) Equal(o *Point) bool {
	if p.Measurement != o.Measurement || p.Timestamp != o.Timestamp {
		return false
	}
	if len(p.Tags) != len(o.Tags) || len(p.Fields) != len(o.Fields) {
		return false
	}
	for k, v := range p.Tags {
		if ov, ok := o.Tags[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range p.Fields {
		if ov, ok := o.Fields[k]; !ok || !ov.Equal(v) {
			return false
		}
	}
	return true
}
