package analytical

import (
	"testing"
	"time"

	"github.com/xtxerr/fluxdump/internal/lineprotocol"
)

func TestSanitizeColumn(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"multi-word-name", "multi_word_name"},
		{"already_ok", "already_ok"},
	}
	for _, tt := range tests {
		if got := sanitizeColumn(tt.in); got != tt.want {
			t.Errorf("sanitizeColumn(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreateTableStmt(t *testing.T) {
	p, err := lineprotocol.Decode(`disk-io,host=h1,dc=ams used=12i,ratio=0.5,label="x",ok=true 1577836800000000000`)
	if err != nil {
		t.Fatal(err)
	}
	want := `CREATE TABLE IF NOT EXISTS "disk-io" (` +
		`"dc" VARCHAR, "host" VARCHAR, ` +
		`"label" VARCHAR, "ok" BOOLEAN, "ratio" DOUBLE, "used" BIGINT, ` +
		`"time" TIMESTAMP)`
	if got := createTableStmt(p); got != want {
		t.Errorf("createTableStmt:\n got %s\nwant %s", got, want)
	}
}

func TestInsertStmt(t *testing.T) {
	got := insertStmt("cpu", []string{"host", "usage-pct", "time"})
	want := `INSERT INTO "cpu" ("host", "usage_pct", "time") VALUES (?, ?, ?)`
	if got != want {
		t.Errorf("insertStmt = %s, want %s", got, want)
	}
}

func TestPointTime(t *testing.T) {
	ref := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ts   int64
		want time.Time
	}{
		{"seconds", 1577836800, ref},
		{"milliseconds", 1577836800000, ref},
		{"microseconds", 1577836800000000, ref},
		{"nanoseconds", 1577836800000000000, ref},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pointTime(tt.ts); !got.Equal(tt.want) {
				t.Errorf("pointTime(%d) = %v, want %v", tt.ts, got, tt.want)
			}
		})
	}
}

func TestRowValues(t *testing.T) {
	p, err := lineprotocol.Decode(`cpu,host=h1 usage=0.5 1577836800000000000`)
	if err != nil {
		t.Fatal(err)
	}
	columns := []string{"host", "usage", "idle", "time"}
	values := rowValues(p, columns)
	if values[0] != "h1" {
		t.Errorf("host = %v", values[0])
	}
	if values[1] != 0.5 {
		t.Errorf("usage = %v", values[1])
	}
	if values[2] != nil {
		t.Errorf("missing field should be NULL, got %v", values[2])
	}
	if ts, ok := values[3].(time.Time); !ok || !ts.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", values[3])
	}
}

func TestDropIgnored(t *testing.T) {
	got := dropIgnored([]string{"aaa", "bbb", "ccc"}, []string{"bbb"})
	if len(got) != 2 || got[0] != "aaa" || got[1] != "ccc" {
		t.Errorf("dropIgnored = %v", got)
	}
	// Nothing ignored returns the input unchanged.
	in := []string{"aaa"}
	if got := dropIgnored(in, nil); len(got) != 1 {
		t.Errorf("dropIgnored = %v", got)
	}
}
