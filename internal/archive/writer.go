package archive

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/fluxdump/internal/backup"
	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/lineprotocol"
)

// Writer writes long-format rows to one Parquet file, zstd-compressed.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[Row]
	rowCount int64
	closed   bool
}

// NewWriter creates path (and its directory) and returns a writer for it.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create archive directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create archive file")
	}
	w := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Zstd))
	return &Writer{path: path, file: f, writer: w}, nil
}

// WritePoint appends one point as rows.
func (w *Writer) WritePoint(p *lineprotocol.Point) error {
	rows := PointRows(p)
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.Wrap(errors.ErrInvalidConfig, "archive writer is closed")
	}
	n, err := w.writer.Write(rows)
	if err != nil {
		return errors.Wrap(err, "write rows")
	}
	w.rowCount += int64(n)
	return nil
}

// RowCount returns the number of rows written so far.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string { return w.path }

// Close flushes buffered rows and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "close archive writer")
	}
	return w.file.Close()
}

// FileName returns the archive file name for a measurement.
func FileName(measurement string) string {
	return measurement + ".parquet"
}

// WriteMeasurement converts one measurement's backup file into
// <outDir>/<measurement>.parquet. Points come back out of the archive in the
// same order they appear in the backup. Returns the number of points
// archived.
func WriteMeasurement(backupDir, outDir, measurement string, gzipEnabled bool) (int64, error) {
	src, err := backup.OpenReader(backupDir, measurement, gzipEnabled)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	w, err := NewWriter(filepath.Join(outDir, FileName(measurement)))
	if err != nil {
		return 0, err
	}

	var points int64
	for {
		line, lineNo, ok := src.Next()
		if !ok {
			break
		}
		p, err := lineprotocol.Decode(line)
		if err != nil {
			w.Close()
			return points, &errors.MeasurementError{
				Measurement: measurement,
				Line:        lineNo,
				Err:         errors.Wrap(errors.ErrCorruptBackup, err.Error()),
			}
		}
		if err := w.WritePoint(p); err != nil {
			w.Close()
			return points, &errors.MeasurementError{Measurement: measurement, Err: err}
		}
		points++
	}
	if err := src.Err(); err != nil {
		w.Close()
		return points, &errors.MeasurementError{Measurement: measurement, Err: err}
	}
	if err := w.Close(); err != nil {
		return points, &errors.MeasurementError{Measurement: measurement, Err: err}
	}
	return points, nil
}
