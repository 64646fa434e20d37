package dump

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/fluxdump/internal/backup"
	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/influx"
	"github.com/xtxerr/fluxdump/internal/logging"
	"github.com/xtxerr/fluxdump/internal/selector"
	"github.com/xtxerr/fluxdump/internal/stats"
	"github.com/xtxerr/fluxdump/internal/timerange"
)

// Config configures a dump run.
type Config struct {
	// Client talks to the source database.
	Client *influx.Client

	// Writer owns the backup directory.
	Writer *backup.Writer

	// Source names the database and optional retention policy to dump.
	Source selector.Target

	// Range bounds the dump; the zero value dumps everything.
	Range timerange.TimeRange

	// Mode selects single-range or incremental (daily) partitioning.
	Mode timerange.Mode

	// Measurements restricts the dump to an explicit list. When empty the
	// measurement list is discovered from the source.
	Measurements []string

	// FromMeasurement is the lexicographic resume cursor; ignored when
	// Measurements is set.
	FromMeasurement string

	// ChunkSize is the server-side chunk size hint. Zero means
	// influx.DefaultReadChunkSize.
	ChunkSize int

	// Parallel is the number of measurements processed concurrently.
	// Values below 2 mean sequential processing.
	Parallel int
}

// Runner executes one dump run. Measurements are processed independently:
// one measurement's failure leaves its partial file in place and the run
// continues with the next.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	stopped atomic.Bool
}

// New creates a dump runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Client == nil {
		return nil, errors.NewMissingField("client")
	}
	if cfg.Writer == nil {
		return nil, errors.NewMissingField("writer")
	}
	if cfg.Source.Database == "" {
		return nil, errors.NewMissingField("source database")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = influx.DefaultReadChunkSize
	}
	return &Runner{
		cfg: cfg,
		log: logging.Component("dump"),
	}, nil
}

// Stop requests a graceful halt: the in-flight chunk is finished and
// written, the rest of the current measurement is skipped, and no further
// measurement is started.
func (r *Runner) Stop() {
	r.stopped.Store(true)
}

// Run executes the dump and returns the tally of succeeded and failed
// measurements. Only run-fatal conditions (unreachable source, invalid
// configuration) return a non-nil error.
func (r *Runner) Run(ctx context.Context) (*stats.Tally, error) {
	tally := &stats.Tally{}

	partitions, err := timerange.Partition(r.cfg.Range, r.cfg.Mode)
	if err != nil {
		return tally, err
	}

	measurements, fieldTypes, err := r.resolveMeasurements(ctx)
	if err != nil {
		return tally, err
	}
	r.log.Info("starting dump",
		"database", r.cfg.Source.Database,
		"measurements", len(measurements),
		"range", r.cfg.Range.String(),
		"partitions", len(partitions),
	)

	if r.cfg.Parallel > 1 {
		return tally, r.runParallel(ctx, measurements, fieldTypes, partitions, tally)
	}

	for _, m := range measurements {
		if r.stopped.Load() || ctx.Err() != nil {
			r.log.Warn("stop requested, halting before next measurement")
			break
		}
		r.dumpOne(ctx, m, fieldTypes[m], partitions, tally)
	}
	return tally, nil
}

// runParallel fans measurements out over a bounded worker group. Each
// measurement still has exactly one writer for its file.
func (r *Runner) runParallel(ctx context.Context, measurements []string, fieldTypes map[string]map[string]string, partitions []timerange.TimeRange, tally *stats.Tally) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallel)

	for _, m := range measurements {
		if r.stopped.Load() {
			break
		}
		m := m
		g.Go(func() error {
			if r.stopped.Load() || ctx.Err() != nil {
				return nil
			}
			r.dumpOne(ctx, m, fieldTypes[m], partitions, tally)
			return nil
		})
	}
	return g.Wait()
}

// resolveMeasurements determines the measurement list once, up front, and
// fetches the field-key types for all of them in one batched query.
func (r *Runner) resolveMeasurements(ctx context.Context) ([]string, map[string]map[string]string, error) {
	var names []string
	if len(r.cfg.Measurements) > 0 {
		names = selector.Filter(nil, r.cfg.Measurements, "")
	} else {
		all, err := r.cfg.Client.ShowMeasurements(ctx, r.cfg.Source.Database)
		if err != nil {
			return nil, nil, errors.Wrap(err, "list measurements")
		}
		names = selector.Filter(all, nil, r.cfg.FromMeasurement)
	}

	fieldTypes, err := r.cfg.Client.ShowFieldKeys(ctx, r.cfg.Source.Database, names)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch field keys")
	}
	return names, fieldTypes, nil
}

// dumpOne extracts one measurement into its backup file and records the
// outcome in the tally.
func (r *Runner) dumpOne(ctx context.Context, measurement string, fieldTypes map[string]string, partitions []timerange.TimeRange, tally *stats.Tally) {
	log := logging.Measurement("dump", measurement)

	if len(fieldTypes) == 0 {
		// A measurement without field keys holds no points.
		log.Info("skipping empty measurement")
		tally.AddSuccess(stats.Summary{Measurement: measurement})
		return
	}

	transfer := stats.NewTransfer(measurement)
	file, err := r.cfg.Writer.Open(measurement)
	if err != nil {
		tally.AddFailure(measurement, err)
		return
	}

	err = r.extract(ctx, measurement, fieldTypes, partitions, file, transfer)
	if closeErr := file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		log.Error("dump failed", "error", err, "points_written", file.Points())
		tally.AddFailure(measurement, err)
		return
	}

	summary := transfer.Summary()
	log.Info("dumped", "points", summary.Points, "bytes", summary.Bytes, "file", file.Path())
	tally.AddSuccess(summary)
}

// extract streams every partition of one measurement into its open file.
func (r *Runner) extract(ctx context.Context, measurement string, fieldTypes map[string]string, partitions []timerange.TimeRange, file *backup.File, transfer *stats.Transfer) error {
	for i, part := range partitions {
		q := influx.SelectAll(r.cfg.Source.RetentionPolicy, measurement, part.Condition())

		stream, err := r.cfg.Client.ChunkedQuery(ctx, r.cfg.Source.Database, q, r.cfg.ChunkSize)
		if err != nil {
			return r.wrapRange(measurement, part, err)
		}

		complete, err := r.drainStream(measurement, fieldTypes, part, stream, file, transfer)
		stream.Close()
		if err != nil {
			return err
		}
		if !complete || (r.stopped.Load() && i < len(partitions)-1) {
			return errors.Wrap(errors.ErrStopped, "measurement incomplete")
		}
	}
	return nil
}

// drainStream pulls chunks off one query stream until it is exhausted or a
// stop is requested. Stops are honored at chunk boundaries only: the chunk
// being transferred is always fully written. complete reports whether the
// stream was fully drained.
func (r *Runner) drainStream(measurement string, fieldTypes map[string]string, part timerange.TimeRange, stream *influx.ChunkStream, file *backup.File, transfer *stats.Transfer) (complete bool, err error) {
	for {
		start := time.Now()
		results, err := stream.Next()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, r.wrapRange(measurement, part, err)
		}

		lines, err := chunkLines(measurement, fieldTypes, results)
		if err != nil {
			return false, r.wrapRange(measurement, part, err)
		}

		before := file.Bytes()
		if err := file.WriteLines(lines); err != nil {
			return false, r.wrapRange(measurement, part, err)
		}
		transfer.AddChunk(len(lines), file.Bytes()-before, time.Since(start))

		if r.stopped.Load() {
			return false, nil
		}
	}
}

// wrapRange attaches measurement and time-range context so the operator can
// narrow the range and re-run.
func (r *Runner) wrapRange(measurement string, part timerange.TimeRange, err error) error {
	return &errors.MeasurementError{
		Measurement: measurement,
		Range:       part.String(),
		Err:         err,
	}
}
