package archive

import (
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/lineprotocol"
)

// Reader reads long-format rows back from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[Row]
	path   string
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive file")
	}
	return &Reader{
		file:   f,
		reader: parquet.NewGenericReader[Row](f),
		path:   path,
	}, nil
}

// ReadAll returns every row in the file.
func (r *Reader) ReadAll() ([]Row, error) {
	rows := make([]Row, r.reader.NumRows())
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read rows")
	}
	return rows[:n], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Points reassembles rows into points. Rows of one point are consecutive in
// the file, so a point ends where measurement, tags or timestamp change.
func Points(rows []Row) []*lineprotocol.Point {
	var points []*lineprotocol.Point
	var cur *lineprotocol.Point
	for i := range rows {
		row := &rows[i]
		if cur == nil || cur.Measurement != row.Measurement ||
			cur.Timestamp != row.Timestamp || !tagsEqual(cur.Tags, row.Tags) {
			cur = &lineprotocol.Point{
				Measurement: row.Measurement,
				Tags:        row.Tags,
				Fields:      make(map[string]lineprotocol.FieldValue),
				Timestamp:   row.Timestamp,
			}
			points = append(points, cur)
		}
		cur.Fields[row.Field] = rowValue(row)
	}
	return points
}

// ReadPoints reads the whole archive and reassembles the points.
func ReadPoints(path string) ([]*lineprotocol.Point, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return Points(rows), nil
}
