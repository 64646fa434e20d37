package analytical

import (
	"sort"
	"strings"
	"time"

	"github.com/xtxerr/fluxdump/internal/lineprotocol"
)

// sanitizeColumn maps a tag or field name to a safe column name. Dashes are
// common in measurement schemas but awkward in SQL, so they become
// underscores.
func sanitizeColumn(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnType maps a field value to its column type.
func columnType(v lineprotocol.FieldValue) string {
	switch v.Type {
	case lineprotocol.FieldInteger:
		return "BIGINT"
	case lineprotocol.FieldBoolean:
		return "BOOLEAN"
	case lineprotocol.FieldString:
		return "VARCHAR"
	default:
		return "DOUBLE"
	}
}

// tableColumns derives the column list from the first decoded point of a
// measurement: sorted tag columns, then sorted field columns, then time.
// Column order is deterministic so generated statements are stable.
func tableColumns(p *lineprotocol.Point) []string {
	tags := make([]string, 0, len(p.Tags))
	for name := range p.Tags {
		tags = append(tags, name)
	}
	sort.Strings(tags)

	fields := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	return append(append(tags, fields...), "time")
}

// createTableStmt renders CREATE TABLE IF NOT EXISTS for a measurement,
// typed from its first point.
func createTableStmt(p *lineprotocol.Point) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(p.Measurement))
	b.WriteString(" (")
	for _, col := range tableColumns(p) {
		if col == "time" {
			b.WriteString(`"time" TIMESTAMP`)
			break
		}
		b.WriteString(quoteIdent(sanitizeColumn(col)))
		if v, ok := p.Fields[col]; ok {
			b.WriteString(" " + columnType(v))
		} else {
			b.WriteString(" VARCHAR")
		}
		b.WriteString(", ")
	}
	b.WriteString(")")
	return b.String()
}

func dropTableStmt(measurement string) string {
	return "DROP TABLE IF EXISTS " + quoteIdent(measurement)
}

// insertStmt renders a parameterized INSERT for the given columns.
func insertStmt(measurement string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(measurement))
	b.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(sanitizeColumn(col)))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(")")
	return b.String()
}

// pointTime converts a timestamp of unknown precision to a time. Source
// timestamps are nanoseconds, but files produced by other exporters carry
// second, millisecond or microsecond epochs; precision is inferred from the
// digit count the way a 10-digit epoch is unambiguously seconds.
func pointTime(ts int64) time.Time {
	v := ts
	if v < 0 {
		v = -v
	}
	digits := 1
	for v >= 10 {
		v /= 10
		digits++
	}
	switch {
	case digits <= 10:
		return time.Unix(ts, 0).UTC()
	case digits <= 13:
		return time.UnixMilli(ts).UTC()
	case digits <= 16:
		return time.UnixMicro(ts).UTC()
	default:
		return time.Unix(0, ts).UTC()
	}
}

// rowValues resolves a point against the column list. Missing fields become
// NULL; tags never present in the schema are dropped.
func rowValues(p *lineprotocol.Point, columns []string) []interface{} {
	values := make([]interface{}, len(columns))
	for i, col := range columns {
		if col == "time" {
			values[i] = pointTime(p.Timestamp)
			continue
		}
		if v, ok := p.Tags[col]; ok {
			values[i] = v
			continue
		}
		v, ok := p.Fields[col]
		if !ok {
			values[i] = nil
			continue
		}
		switch v.Type {
		case lineprotocol.FieldInteger:
			values[i] = v.Int
		case lineprotocol.FieldBoolean:
			values[i] = v.Bool
		case lineprotocol.FieldString:
			values[i] = v.Str
		default:
			values[i] = v.Float
		}
	}
	return values
}
