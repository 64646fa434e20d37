// Package analytical loads line-protocol backups into a DuckDB database for
// ad-hoc analysis. Tables are one per measurement, with a column per tag and
// field, typed from the first point seen.
package analytical

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/fluxdump/internal/backup"
	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/lineprotocol"
	"github.com/xtxerr/fluxdump/internal/logging"
	"github.com/xtxerr/fluxdump/internal/selector"
	"github.com/xtxerr/fluxdump/internal/stats"
)

// DefaultInsertChunkSize is how many rows go into one transaction.
const DefaultInsertChunkSize = 100000

// Config holds analytical loader configuration.
type Config struct {
	// DSN is the DuckDB connection string; empty means in-memory.
	DSN string

	Dir  string
	Gzip bool

	Measurements       []string
	FromMeasurement    string
	IgnoreMeasurements []string

	ChunkSize int

	// AutoCreateSchema creates each measurement's table from its first
	// point; AutoDropSchema drops the table first so reloads start clean.
	AutoCreateSchema bool
	AutoDropSchema   bool
}

// Loader loads backup files into DuckDB.
type Loader struct {
	db      *sql.DB
	cfg     Config
	log     *slog.Logger
	managed map[string]bool
}

func New(cfg Config) (*Loader, error) {
	if cfg.Dir == "" {
		return nil, errors.NewMissingField("dir")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultInsertChunkSize
	}

	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &Loader{
		db:      db,
		cfg:     cfg,
		log:     logging.Component("analytical"),
		managed: make(map[string]bool),
	}, nil
}

// DB exposes the underlying connection for ad-hoc queries after a load.
func (l *Loader) DB() *sql.DB {
	return l.db
}

func (l *Loader) Close() error {
	return l.db.Close()
}

// Run loads every selected measurement. Measurements fail independently,
// mirroring restore semantics.
func (l *Loader) Run(ctx context.Context) (*stats.Tally, error) {
	measurements, err := l.resolveMeasurements()
	if err != nil {
		return nil, err
	}

	l.log.Info("analytical load starting", "measurements", len(measurements))

	tally := &stats.Tally{}
	for _, m := range measurements {
		log := logging.Measurement("analytical", m)
		transfer, err := l.loadOne(ctx, m)
		if err != nil {
			tally.AddFailure(m, err)
			log.Error("load failed", "error", err)
			continue
		}
		summary := transfer.Summary()
		tally.AddSuccess(summary)
		log.Info("loaded", "points", summary.Points, "chunks", summary.Chunks)
	}

	tally.Log(l.log)
	return tally, nil
}

func (l *Loader) resolveMeasurements() ([]string, error) {
	var all []string
	if len(l.cfg.Measurements) == 0 {
		var err error
		all, err = backup.List(l.cfg.Dir, l.cfg.Gzip)
		if err != nil {
			return nil, err
		}
		all = dropIgnored(all, l.cfg.IgnoreMeasurements)
	}
	measurements := selector.Filter(all, l.cfg.Measurements, l.cfg.FromMeasurement)
	if len(measurements) == 0 {
		return nil, errors.Wrap(errors.ErrNothingToRestore,
			"no backup files matched; gzipped backups need the gzip option")
	}
	return measurements, nil
}

// dropIgnored removes names on the ignore list.
func dropIgnored(measurements, ignored []string) []string {
	if len(ignored) == 0 {
		return measurements
	}
	skip := make(map[string]bool, len(ignored))
	for _, m := range ignored {
		skip[m] = true
	}
	kept := measurements[:0:0]
	for _, m := range measurements {
		if !skip[m] {
			kept = append(kept, m)
		}
	}
	return kept
}

func (l *Loader) loadOne(ctx context.Context, measurement string) (*stats.Transfer, error) {
	src, err := backup.OpenReader(l.cfg.Dir, measurement, l.cfg.Gzip)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	transfer := stats.NewTransfer(measurement)

	var columns []string
	batch := make([]*lineprotocol.Point, 0, l.cfg.ChunkSize)
	var batchBytes int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		if err := l.insertChunk(ctx, measurement, columns, batch); err != nil {
			return err
		}
		transfer.AddChunk(len(batch), batchBytes, time.Since(start))
		batch = batch[:0]
		batchBytes = 0
		return nil
	}

	for {
		line, lineNo, ok := src.Next()
		if !ok {
			break
		}
		p, err := lineprotocol.Decode(line)
		if err != nil {
			return transfer, &errors.MeasurementError{
				Measurement: measurement,
				Line:        lineNo,
				Err:         errors.Wrap(errors.ErrCorruptBackup, err.Error()),
			}
		}
		if columns == nil {
			if err := l.manageSchema(ctx, p); err != nil {
				return transfer, &errors.MeasurementError{Measurement: measurement, Err: err}
			}
			columns = tableColumns(p)
		}
		batch = append(batch, p)
		batchBytes += int64(len(line)) + 1
		if len(batch) == l.cfg.ChunkSize {
			if err := flush(); err != nil {
				return transfer, &errors.MeasurementError{Measurement: measurement, Err: err}
			}
		}
	}
	if err := src.Err(); err != nil {
		return transfer, &errors.MeasurementError{Measurement: measurement, Err: err}
	}
	if err := flush(); err != nil {
		return transfer, &errors.MeasurementError{Measurement: measurement, Err: err}
	}
	return transfer, nil
}

// manageSchema drops and creates the measurement's table as configured.
// Runs once per measurement per load.
func (l *Loader) manageSchema(ctx context.Context, p *lineprotocol.Point) error {
	if l.managed[p.Measurement] {
		return nil
	}
	if l.cfg.AutoDropSchema {
		if _, err := l.db.ExecContext(ctx, dropTableStmt(p.Measurement)); err != nil {
			return errors.Wrap(err, "drop table")
		}
	}
	if l.cfg.AutoCreateSchema {
		stmt := createTableStmt(p)
		l.log.Debug("creating table", "statement", stmt)
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create table")
		}
	}
	l.managed[p.Measurement] = true
	return nil
}

// insertChunk writes one batch inside a transaction with a prepared insert.
func (l *Loader) insertChunk(ctx context.Context, measurement string, columns []string, points []*lineprotocol.Point) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	stmt, err := tx.PrepareContext(ctx, insertStmt(measurement, columns))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare insert")
	}
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, rowValues(p, columns)...); err != nil {
			stmt.Close()
			tx.Rollback()
			return errors.Wrap(err, "insert row")
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
