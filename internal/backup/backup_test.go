package backup

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xtxerr/fluxdump/internal/errors"
)

func TestWriteReadPlain(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	f, err := w.Open("cpu")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lines := []string{"cpu value=1 1", "cpu value=2 2", "cpu value=3 3"}
	if err := f.WriteLines(lines[:2]); err != nil {
		t.Fatalf("WriteLines: %v", err)
	}
	if err := f.WriteLines(lines[2:]); err != nil {
		t.Fatalf("WriteLines: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if f.Points() != 3 {
		t.Errorf("points = %d, want 3", f.Points())
	}
	wantBytes := int64(len("cpu value=1 1\ncpu value=2 2\ncpu value=3 3\n"))
	if f.Bytes() != wantBytes {
		t.Errorf("bytes = %d, want %d", f.Bytes(), wantBytes)
	}

	// Read back in order.
	r, err := OpenReader(dir, "cpu", false)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	var got []string
	for {
		line, n, ok := r.Next()
		if !ok {
			break
		}
		if n != len(got)+1 {
			t.Errorf("line number = %d, want %d", n, len(got)+1)
		}
		got = append(got, line)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if !reflect.DeepEqual(got, lines) {
		t.Errorf("read back %v, want %v", got, lines)
	}
}

func TestWriteReadGzip(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, true)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	f, err := w.Open("mem")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.WriteLines([]string{"mem used=42i 7"}); err != nil {
		t.Fatalf("WriteLines: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if filepath.Base(f.Path()) != "mem.gz" {
		t.Errorf("path = %q, want mem.gz", f.Path())
	}

	r, err := OpenReader(dir, "mem", true)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	line, _, ok := r.Next()
	if !ok || line != "mem used=42i 7" {
		t.Errorf("line = %q ok=%v", line, ok)
	}
	if _, _, ok := r.Next(); ok {
		t.Error("expected end of file")
	}
}

func TestCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir, false)
	f, err := w.Open("cpu")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"mem", "cpu", "net.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	plain, err := List(dir, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(plain, []string{"cpu", "mem"}) {
		t.Errorf("plain = %v", plain)
	}

	gzipped, err := List(dir, true)
	if err != nil {
		t.Fatalf("List gzip: %v", err)
	}
	if !reflect.DeepEqual(gzipped, []string{"net"}) {
		t.Errorf("gzipped = %v", gzipped)
	}
}

func TestListMissingDir(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "nope"), false)
	if !errors.Is(err, errors.ErrBackupDirMissing) {
		t.Fatalf("got %v, want ErrBackupDirMissing", err)
	}
}

func TestOpenBadMeasurementName(t *testing.T) {
	w, _ := NewWriter(t.TempDir(), false)
	for _, name := range []string{"", "a/b", "..", `a\b`} {
		if _, err := w.Open(name); err == nil {
			t.Errorf("Open(%q) succeeded, want error", name)
		}
	}
}

func TestReaderCorruptGzip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cpu.gz"), []byte("not gzip data"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenReader(dir, "cpu", true)
	if !errors.Is(err, errors.ErrCorruptBackup) {
		t.Fatalf("got %v, want ErrCorruptBackup", err)
	}
}
