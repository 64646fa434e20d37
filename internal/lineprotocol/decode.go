package lineprotocol

import (
	"strconv"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// Decode parses one line of line-protocol text into a Point. It is the exact
// inverse of Encode: for any valid point p, Decode(Encode(p)) equals p,
// including field types and timestamp precision. Malformed input fails with a
// ParseError carrying the byte offset.
func Decode(line string) (*Point, error) {
	d := &decoder{s: line}

	measurement, err := d.identifier(", ")
	if err != nil {
		return nil, err
	}
	if measurement == "" {
		return nil, d.fail(0, "empty measurement name")
	}

	p := &Point{Measurement: measurement}

	// Tag set: zero or more ,key=value pairs.
	for d.peek() == ',' {
		d.pos++
		key, err := d.identifier("=, ")
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, d.fail(d.pos, "empty tag key")
		}
		if d.peek() != '=' {
			return nil, d.fail(d.pos, "expected '=' after tag key")
		}
		d.pos++
		value, err := d.identifier(", ")
		if err != nil {
			return nil, err
		}
		if value == "" {
			return nil, d.fail(d.pos, "empty tag value")
		}
		if p.Tags == nil {
			p.Tags = make(map[string]string)
		}
		p.Tags[key] = value
	}

	if d.peek() != ' ' {
		return nil, d.fail(d.pos, "expected field set")
	}
	d.pos++

	// Field set: one or more key=value pairs.
	p.Fields = make(map[string]FieldValue)
	for {
		key, err := d.identifier("=, ")
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, d.fail(d.pos, "empty field key")
		}
		if d.peek() != '=' {
			return nil, d.fail(d.pos, "expected '=' after field key")
		}
		d.pos++
		value, err := d.fieldValue()
		if err != nil {
			return nil, err
		}
		p.Fields[key] = value

		if d.peek() == ',' {
			d.pos++
			continue
		}
		break
	}

	// Optional timestamp.
	if d.peek() == ' ' {
		d.pos++
		rest := d.s[d.pos:]
		ts, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, d.fail(d.pos, "invalid timestamp "+strconv.Quote(rest))
		}
		p.Timestamp = ts
	} else if d.pos < len(d.s) {
		return nil, d.fail(d.pos, "unexpected trailing input")
	}

	return p, nil
}

// decoder is a cursor over one line of input.
type decoder struct {
	s   string
	pos int
}

// peek returns the next byte, or 0 at end of input.
func (d *decoder) peek() byte {
	if d.pos >= len(d.s) {
		return 0
	}
	return d.s[d.pos]
}

// fail returns a ParseError at the given offset.
func (d *decoder) fail(offset int, reason string) error {
	return &errors.ParseError{Offset: offset, Reason: reason}
}

// identifier reads an escaped identifier, stopping at any unescaped byte in
// stops or at end of input. Backslash escapes are resolved.
func (d *decoder) identifier(stops string) (string, error) {
	var out []byte
	for d.pos < len(d.s) {
		c := d.s[d.pos]
		if c == '\\' {
			if d.pos+1 >= len(d.s) {
				return "", d.fail(d.pos, "dangling escape")
			}
			out = append(out, d.s[d.pos+1])
			d.pos += 2
			continue
		}
		if indexByte(stops, c) {
			break
		}
		out = append(out, c)
		d.pos++
	}
	return string(out), nil
}

// indexByte reports whether set contains c.
func indexByte(set string, c byte) bool {
	for i := 0; i < len(set); i++ {
		if set[i] == c {
			return true
		}
	}
	return false
}

// fieldValue parses one field literal: quoted string, integer with 'i'
// suffix, boolean or float.
func (d *decoder) fieldValue() (FieldValue, error) {
	if d.peek() == '"' {
		return d.quotedString()
	}

	start := d.pos
	for d.pos < len(d.s) {
		c := d.s[d.pos]
		if c == ',' || c == ' ' {
			break
		}
		d.pos++
	}
	raw := d.s[start:d.pos]
	if raw == "" {
		return FieldValue{}, d.fail(start, "empty field value")
	}

	switch raw {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	}

	if raw[len(raw)-1] == 'i' {
		n, err := strconv.ParseInt(raw[:len(raw)-1], 10, 64)
		if err != nil {
			return FieldValue{}, d.fail(start, "invalid integer literal "+strconv.Quote(raw))
		}
		return Integer(n), nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return FieldValue{}, d.fail(start, "invalid field literal "+strconv.Quote(raw))
	}
	return Float(f), nil
}

// quotedString parses a double-quoted string field value, resolving \" and
// \\ escapes.
func (d *decoder) quotedString() (FieldValue, error) {
	start := d.pos
	d.pos++ // opening quote
	var out []byte
	for d.pos < len(d.s) {
		c := d.s[d.pos]
		if c == '\\' {
			if d.pos+1 >= len(d.s) {
				return FieldValue{}, d.fail(d.pos, "dangling escape in string")
			}
			out = append(out, d.s[d.pos+1])
			d.pos += 2
			continue
		}
		if c == '"' {
			d.pos++
			return Str(string(out)), nil
		}
		out = append(out, c)
		d.pos++
	}
	return FieldValue{}, d.fail(start, "unterminated string")
}
