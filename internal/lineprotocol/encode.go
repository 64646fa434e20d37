package lineprotocol

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// identifierEscaper escapes the delimiter characters in measurement names,
// tag keys, tag values and field keys. Backslash is escaped first so the
// encoding stays reversible.
var identifierEscaper = strings.NewReplacer(
	`\`, `\\`,
	`,`, `\,`,
	`=`, `\=`,
	` `, `\ `,
)

// stringFieldEscaper escapes string field values, which are double-quoted;
// only quotes and backslashes need escaping there.
var stringFieldEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
)

// Encode renders a point as one line of line-protocol text (without a
// trailing newline). Tags and fields are sorted by key so the output is
// deterministic. Returns ErrEmptyFieldSet for a point without fields.
//
// Format: measurement[,tag=value,...] field=value[,field=value,...] [timestamp]
func Encode(p *Point) (string, error) {
	if p.Measurement == "" {
		return "", errors.Wrap(errors.ErrParse, "empty measurement name")
	}
	if len(p.Fields) == 0 {
		return "", errors.ErrEmptyFieldSet
	}

	var b strings.Builder
	b.WriteString(identifierEscaper.Replace(p.Measurement))

	if len(p.Tags) > 0 {
		keys := make([]string, 0, len(p.Tags))
		for k := range p.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(',')
			b.WriteString(identifierEscaper.Replace(k))
			b.WriteByte('=')
			b.WriteString(identifierEscaper.Replace(p.Tags[k]))
		}
	}

	b.WriteByte(' ')

	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(identifierEscaper.Replace(k))
		b.WriteByte('=')
		writeFieldValue(&b, p.Fields[k])
	}

	if p.Timestamp != 0 {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(p.Timestamp, 10))
	}

	return b.String(), nil
}

// writeFieldValue renders one field literal with its type marker.
func writeFieldValue(b *strings.Builder, v FieldValue) {
	switch v.Type {
	case FieldInteger:
		b.WriteString(strconv.FormatInt(v.Int, 10))
		b.WriteByte('i')
	case FieldFloat:
		b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case FieldBoolean:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case FieldString:
		b.WriteByte('"')
		b.WriteString(stringFieldEscaper.Replace(v.Str))
		b.WriteByte('"')
	}
}
