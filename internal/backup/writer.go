// Package backup manages the backup file layout: a directory with one file
// per measurement, named after the measurement (plus ".gz" when compressed),
// containing newline-separated line-protocol records in time order. Files are
// append-only during a dump and read sequentially during restore.
package backup

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// writeBufferSize is the size of the buffered writer in front of the file
// (and in front of the gzip stream when compression is on).
const writeBufferSize = 64 * 1024

// Writer creates per-measurement backup files in one directory.
type Writer struct {
	dir  string
	gzip bool
}

// NewWriter creates the backup directory if needed and returns a Writer.
func NewWriter(dir string, gzipEnabled bool) (*Writer, error) {
	if dir == "" {
		return nil, errors.NewMissingField("backup directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create backup dir")
	}
	return &Writer{dir: dir, gzip: gzipEnabled}, nil
}

// Dir returns the backup directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Open creates (truncating) the backup file for one measurement and returns
// its handle. Handles for different measurements are independent; a single
// handle must only be used by one writer at a time.
func (w *Writer) Open(measurement string) (*File, error) {
	if err := validateName(measurement); err != nil {
		return nil, err
	}

	path := filepath.Join(w.dir, FileName(measurement, w.gzip))
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create backup file for %q", measurement)
	}

	bf := &File{
		measurement: measurement,
		path:        path,
		file:        f,
	}
	if w.gzip {
		bf.gz = gzip.NewWriter(f)
		bf.buf = bufio.NewWriterSize(bf.gz, writeBufferSize)
	} else {
		bf.buf = bufio.NewWriterSize(f, writeBufferSize)
	}
	return bf, nil
}

// File is one measurement's open backup file.
type File struct {
	measurement string
	path        string
	file        *os.File
	gz          *gzip.Writer
	buf         *bufio.Writer

	points int64
	bytes  int64
	closed bool
}

// WriteLines appends line-protocol records, one per line. The lines must not
// carry trailing newlines.
func (f *File) WriteLines(lines []string) error {
	for _, line := range lines {
		n, err := f.buf.WriteString(line)
		if err != nil {
			return errors.Wrapf(err, "write %q", f.path)
		}
		if err := f.buf.WriteByte('\n'); err != nil {
			return errors.Wrapf(err, "write %q", f.path)
		}
		f.points++
		f.bytes += int64(n) + 1
	}
	return nil
}

// Points returns the number of records written so far.
func (f *File) Points() int64 { return f.points }

// Bytes returns the number of uncompressed bytes written so far.
func (f *File) Bytes() int64 { return f.bytes }

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Close flushes all buffers and closes the file. It is safe to call on every
// exit path, including after a mid-measurement failure; a partial file is
// left in place for the operator to inspect and the measurement to be re-run.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	var firstErr error
	if err := f.buf.Flush(); err != nil {
		firstErr = err
	}
	if f.gz != nil {
		if err := f.gz.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errors.Wrapf(firstErr, "close %q", f.path)
	}
	return nil
}

// FileName returns the backup file name for a measurement.
func FileName(measurement string, gzipEnabled bool) string {
	if gzipEnabled {
		return measurement + ".gz"
	}
	return measurement
}

// validateName rejects measurement names that cannot be used as file names.
func validateName(measurement string) error {
	if measurement == "" {
		return errors.NewMissingField("measurement")
	}
	if strings.ContainsAny(measurement, "/\\") || measurement == "." || measurement == ".." {
		return errors.NewValidation("measurement", "name is not usable as a file name")
	}
	return nil
}
