// Package dump implements the backup side of the pipeline: time-bounded
// chunked extraction from the source database, conversion of result rows into
// line-protocol records, and per-measurement backup files.
package dump

import (
	"encoding/json"
	"strconv"

	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/influx"
	"github.com/xtxerr/fluxdump/internal/lineprotocol"
)

// chunkLines converts one chunk of query results into encoded line-protocol
// records, in the exact row order the source returned. fieldTypes is the
// measurement's field-key mapping from SHOW FIELD KEYS; every other column
// except "time" is a tag.
//
// Null and empty column values are skipped, matching how the source pads
// rows of a measurement whose series have differing tag/field sets.
func chunkLines(measurement string, fieldTypes map[string]string, results []influx.Result) ([]string, error) {
	var lines []string
	for _, res := range results {
		for _, series := range res.Series {
			for _, row := range series.Values {
				point, err := rowToPoint(measurement, series.Columns, row, fieldTypes)
				if err != nil {
					return nil, err
				}
				line, err := lineprotocol.Encode(point)
				if err != nil {
					return nil, err
				}
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

// rowToPoint maps one result row onto a Point using the column list and the
// measurement's field types. A row without a time column or without any
// field is a malformed source response and fails the measurement.
func rowToPoint(measurement string, columns []string, row []interface{}, fieldTypes map[string]string) (*lineprotocol.Point, error) {
	p := &lineprotocol.Point{
		Measurement: measurement,
		Fields:      make(map[string]lineprotocol.FieldValue),
	}

	for i, col := range columns {
		if i >= len(row) {
			break
		}
		val := row[i]
		if val == nil || val == "" {
			continue
		}

		if col == "time" {
			ts, err := toInt64(val)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrMalformedResult, "bad time value %v: %v", val, err)
			}
			p.Timestamp = ts
			continue
		}

		if fieldType, ok := fieldTypes[col]; ok {
			fv, err := toFieldValue(val, fieldType)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrMalformedResult, "field %q: %v", col, err)
			}
			p.Fields[col] = fv
			continue
		}

		// Tag column.
		if p.Tags == nil {
			p.Tags = make(map[string]string)
		}
		p.Tags[col] = toTagString(val)
	}

	if p.Timestamp == 0 || len(p.Fields) == 0 {
		return nil, errors.Wrapf(errors.ErrMalformedResult,
			"row has time %d and %d fields", p.Timestamp, len(p.Fields))
	}
	return p, nil
}

// toFieldValue converts a JSON result value into a typed field value
// matching the declared field type.
func toFieldValue(val interface{}, fieldType string) (lineprotocol.FieldValue, error) {
	switch fieldType {
	case "string":
		s, ok := val.(string)
		if !ok {
			return lineprotocol.FieldValue{}, errors.Wrapf(errors.ErrMalformedResult,
				"expected string, got %T", val)
		}
		return lineprotocol.Str(s), nil

	case "integer":
		n, err := toInt64(val)
		if err != nil {
			return lineprotocol.FieldValue{}, err
		}
		return lineprotocol.Integer(n), nil

	case "boolean":
		b, ok := val.(bool)
		if !ok {
			return lineprotocol.FieldValue{}, errors.Wrapf(errors.ErrMalformedResult,
				"expected boolean, got %T", val)
		}
		return lineprotocol.Boolean(b), nil

	case "float":
		num, ok := val.(json.Number)
		if !ok {
			return lineprotocol.FieldValue{}, errors.Wrapf(errors.ErrMalformedResult,
				"expected number, got %T", val)
		}
		f, err := num.Float64()
		if err != nil {
			return lineprotocol.FieldValue{}, err
		}
		return lineprotocol.Float(f), nil

	default:
		return lineprotocol.FieldValue{}, errors.Wrapf(errors.ErrMalformedResult,
			"unknown field type %q", fieldType)
	}
}

// toInt64 converts a JSON number to int64 without losing nanosecond
// precision.
func toInt64(val interface{}) (int64, error) {
	num, ok := val.(json.Number)
	if !ok {
		return 0, errors.Wrapf(errors.ErrMalformedResult, "expected number, got %T", val)
	}
	return strconv.ParseInt(num.String(), 10, 64)
}

// toTagString renders a tag column value. Tags are strings on the wire; any
// other type is rendered in its literal form.
func toTagString(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
