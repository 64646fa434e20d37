package lineprotocol

import (
	"strings"
	"testing"

	"github.com/xtxerr/fluxdump/internal/errors"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		point Point
		want  string
	}{
		{
			name: "full point",
			point: Point{
				Measurement: "agent_status",
				Tags:        map[string]string{"agent": "foo bar", "tenant": "roman"},
				Fields: map[string]FieldValue{
					"duration_in_old_status": Integer(1207920),
					"new_status":             Str("offline"),
					"old_status":             Str("available"),
				},
				Timestamp: 1496310265009000000,
			},
			want: `agent_status,agent=foo\ bar,tenant=roman duration_in_old_status=1207920i,new_status="offline",old_status="available" 1496310265009000000`,
		},
		{
			name: "no tags",
			point: Point{
				Measurement: "cpu",
				Fields:      map[string]FieldValue{"value": Float(0.64)},
				Timestamp:   1000,
			},
			want: "cpu value=0.64 1000",
		},
		{
			name: "no timestamp",
			point: Point{
				Measurement: "cpu",
				Fields:      map[string]FieldValue{"up": Boolean(true)},
			},
			want: "cpu up=true",
		},
		{
			name: "tags sorted by key",
			point: Point{
				Measurement: "m",
				Tags:        map[string]string{"b": "2", "a": "1", "c": "3"},
				Fields:      map[string]FieldValue{"v": Integer(1)},
			},
			want: "m,a=1,b=2,c=3 v=1i",
		},
		{
			name: "delimiters escaped",
			point: Point{
				Measurement: "my measurement",
				Tags:        map[string]string{"k=ey": "a,b c"},
				Fields:      map[string]FieldValue{"f,1": Str(`say "hi" \o/`)},
			},
			want: `my\ measurement,k\=ey=a\,b\ c f\,1="say \"hi\" \\o/"`,
		},
		{
			name: "negative integer and exponent float",
			point: Point{
				Measurement: "m",
				Fields: map[string]FieldValue{
					"a": Integer(-42),
					"b": Float(1e21),
				},
			},
			want: "m a=-42i,b=1e+21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(&tt.point)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeNoFields(t *testing.T) {
	_, err := Encode(&Point{Measurement: "cpu"})
	if !errors.Is(err, errors.ErrEmptyFieldSet) {
		t.Fatalf("expected ErrEmptyFieldSet, got %v", err)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	points := []Point{
		{
			Measurement: "cpu",
			Tags:        map[string]string{"host": "a"},
			Fields:      map[string]FieldValue{"value": Float(0.5)},
			Timestamp:   1496310265009000000,
		},
		{
			Measurement: "weird name, with=things",
			Tags:        map[string]string{"path": `C:\temp\x`, "note": "a b,c=d"},
			Fields: map[string]FieldValue{
				"int":    Integer(9007199254740993),
				"float":  Float(-0.0001),
				"bool":   Boolean(false),
				"string": Str("line1\"quoted\" and \\slash"),
			},
			Timestamp: -6795364578871345152,
		},
		{
			Measurement: "no_ts",
			Fields:      map[string]FieldValue{"v": Integer(0)},
		},
		{
			Measurement: "stringy",
			Fields: map[string]FieldValue{
				"looks_int":   Str("42i"),
				"looks_bool":  Str("true"),
				"looks_float": Str("1.5"),
				"empty":       Str(""),
			},
			Timestamp: 1,
		},
	}

	for _, p := range points {
		p := p
		t.Run(p.Measurement, func(t *testing.T) {
			line, err := Encode(&p)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(line)
			if err != nil {
				t.Fatalf("Decode(%q): %v", line, err)
			}
			if !got.Equal(&p) {
				t.Errorf("round trip mismatch\n line: %q\n  got: %+v\n want: %+v", line, got, p)
			}
		})
	}
}

func TestDecodeFieldTypes(t *testing.T) {
	p, err := Decode(`m int=5i,float=5,neg=-5i,exp=2.5e3,b=true,s="5i"`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	tests := []struct {
		field string
		want  FieldValue
	}{
		{"int", Integer(5)},
		{"float", Float(5)},
		{"neg", Integer(-5)},
		{"exp", Float(2500)},
		{"b", Boolean(true)},
		{"s", Str("5i")},
	}
	for _, tt := range tests {
		got, ok := p.Fields[tt.field]
		if !ok {
			t.Errorf("field %q missing", tt.field)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("field %q = %+v, want %+v", tt.field, got, tt.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty line", ""},
		{"empty field set", "cpu,host=a value="},
		{"no fields", "cpu,host=a"},
		{"measurement only", "cpu"},
		{"empty tag value", "cpu,host= value=1"},
		{"empty tag key", "cpu,=a value=1"},
		{"bad integer", "cpu value=12xi"},
		{"bad literal", "cpu value=notanumber"},
		{"unterminated string", `cpu value="abc`},
		{"dangling escape", `cpu\`},
		{"bad timestamp", "cpu value=1 notatime"},
		{"trailing garbage", "cpu value=1 123 456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.line)
			if err == nil {
				t.Fatalf("Decode(%q) succeeded, want error", tt.line)
			}
			if !errors.Is(err, errors.ErrParse) {
				t.Errorf("Decode(%q) error = %v, want ErrParse", tt.line, err)
			}
			var perr *errors.ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Decode(%q) error is not a *ParseError", tt.line)
			}
		})
	}
}

func TestDecodeOriginalFormat(t *testing.T) {
	// A line in the exact shape the dumper writes.
	line := `agent_status,agent=foo\ bar,tenant=roman duration_in_old_status=1207920i,new_status="offline",old_status="available" 1496310265009000000`

	p, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Measurement != "agent_status" {
		t.Errorf("measurement = %q", p.Measurement)
	}
	if p.Tags["agent"] != "foo bar" || p.Tags["tenant"] != "roman" {
		t.Errorf("tags = %v", p.Tags)
	}
	if !p.Fields["duration_in_old_status"].Equal(Integer(1207920)) {
		t.Errorf("integer field = %+v", p.Fields["duration_in_old_status"])
	}
	if p.Timestamp != 1496310265009000000 {
		t.Errorf("timestamp = %d", p.Timestamp)
	}

	// Encoding it again must reproduce the identical line.
	line2, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if line2 != line {
		t.Errorf("re-encode mismatch:\n got %q\nwant %q", line2, line)
	}
}

func TestDecodeLongLine(t *testing.T) {
	// Many fields on one line must not confuse the cursor.
	var b strings.Builder
	b.WriteString("m")
	for i := 0; i < 100; i++ {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(",")
		}
		b.WriteString("f")
		b.WriteByte(byte('0' + i%10))
		b.WriteByte(byte('0' + i/10))
		b.WriteString("=1i")
	}
	p, err := Decode(b.String())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Fields) != 100 {
		t.Errorf("fields = %d, want 100", len(p.Fields))
	}
}
