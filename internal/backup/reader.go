package backup

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// maxLineSize bounds a single line-protocol record when reading a backup
// file. Records beyond this indicate corruption.
const maxLineSize = 16 * 1024 * 1024

// List returns the sorted measurement names present in a backup directory.
// With gzipEnabled, only ".gz" files count and the suffix is stripped;
// without it, ".gz" files are ignored. This mirrors how the files were
// written, so a dump made with compression must be restored with it.
func List(dir string, gzipEnabled bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrBackupDirMissing, "%q", dir)
		}
		return nil, errors.Wrap(err, "read backup dir")
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if gzipEnabled {
			if strings.HasSuffix(name, ".gz") {
				names = append(names, strings.TrimSuffix(name, ".gz"))
			}
		} else if !strings.HasSuffix(name, ".gz") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Reader reads one measurement's backup file line by line, transparently
// decompressing when the dump was gzipped.
type Reader struct {
	path    string
	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	line    int
}

// OpenReader opens the backup file for one measurement.
func OpenReader(dir, measurement string, gzipEnabled bool) (*Reader, error) {
	path := filepath.Join(dir, FileName(measurement, gzipEnabled))
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open backup file for %q", measurement)
	}

	r := &Reader{path: path, file: f}
	var src *bufio.Scanner
	if gzipEnabled {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(errors.ErrCorruptBackup, "%q: %v", path, err)
		}
		r.gz = gz
		src = bufio.NewScanner(gz)
	} else {
		src = bufio.NewScanner(f)
	}
	src.Buffer(make([]byte, 64*1024), maxLineSize)
	r.scanner = src
	return r, nil
}

// Next returns the next record and its 1-based line number. It returns
// ok=false at end of file; a read error afterwards is reported by Err.
func (r *Reader) Next() (line string, lineNo int, ok bool) {
	if !r.scanner.Scan() {
		return "", r.line, false
	}
	r.line++
	return r.scanner.Text(), r.line, true
}

// Err returns the first error encountered while scanning, if any. A scan
// error on a backup file means the file is corrupt or truncated.
func (r *Reader) Err() error {
	if err := r.scanner.Err(); err != nil {
		return errors.Wrapf(errors.ErrCorruptBackup, "%q after line %d: %v", r.path, r.line, err)
	}
	return nil
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// Close closes the underlying file.
func (r *Reader) Close() error {
	var firstErr error
	if r.gz != nil {
		if err := r.gz.Close(); err != nil {
			firstErr = err
		}
	}
	if err := r.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
