package restore

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xtxerr/fluxdump/internal/backup"
	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/influx"
	"github.com/xtxerr/fluxdump/internal/logging"
	"github.com/xtxerr/fluxdump/internal/selector"
	"github.com/xtxerr/fluxdump/internal/stats"
)

// ConfirmFunc is asked once before any data is written. Returning false
// aborts the whole restore. The CLI wires an interactive prompt here; tests
// and non-interactive callers pass nil or a constant.
type ConfirmFunc func(target selector.Target, measurements []string) bool

// Config carries everything a restore run needs.
type Config struct {
	Client *influx.Client
	Dir    string
	Gzip   bool
	Target selector.Target

	// Measurements restores exactly these names, bypassing directory
	// discovery. FromMeasurement restores discovered names from this one
	// onward.
	Measurements    []string
	FromMeasurement string

	ChunkSize        int
	ChunkDelay       time.Duration
	MeasurementDelay time.Duration

	Confirm ConfirmFunc
}

// Runner restores measurements one at a time. Each measurement fails or
// succeeds independently; the run only aborts early on a stop request or a
// declined confirmation.
type Runner struct {
	cfg     Config
	loader  *Loader
	log     *slog.Logger
	stopped atomic.Bool
}

func New(cfg Config) (*Runner, error) {
	if cfg.Client == nil {
		return nil, errors.NewMissingField("client")
	}
	if cfg.Dir == "" {
		return nil, errors.NewMissingField("dir")
	}
	if cfg.Target.Database == "" {
		return nil, errors.NewMissingField("database")
	}
	log := logging.Component("restore")
	return &Runner{
		cfg:    cfg,
		loader: NewLoader(cfg.Client, cfg.ChunkSize, cfg.ChunkDelay, log),
		log:    log,
	}, nil
}

// Stop requests a clean halt. The in-flight chunk is finished, the rest of
// the current measurement is skipped, and no further measurement starts.
func (r *Runner) Stop() {
	r.stopped.Store(true)
}

func (r *Runner) Run(ctx context.Context) (*stats.Tally, error) {
	measurements, err := r.resolveMeasurements()
	if err != nil {
		return nil, err
	}

	if r.cfg.Confirm != nil && !r.cfg.Confirm(r.cfg.Target, measurements) {
		return nil, errors.ErrNotConfirmed
	}

	r.log.Info("restore starting",
		"database", r.cfg.Target.Database,
		"retention_policy", r.cfg.Target.RetentionPolicy,
		"measurements", len(measurements))

	tally := &stats.Tally{}
	for i, m := range measurements {
		if r.stopped.Load() {
			r.log.Info("stop requested, halting before next measurement", "measurement", m)
			break
		}
		if i > 0 && r.cfg.MeasurementDelay > 0 {
			if err := sleep(ctx, r.cfg.MeasurementDelay); err != nil {
				return tally, err
			}
		}
		r.restoreOne(ctx, m, tally)
	}

	tally.Log(r.log)
	return tally, nil
}

// resolveMeasurements decides what to restore: an explicit list verbatim,
// otherwise the backup directory's contents filtered by the cursor.
func (r *Runner) resolveMeasurements() ([]string, error) {
	var all []string
	if len(r.cfg.Measurements) == 0 {
		var err error
		all, err = backup.List(r.cfg.Dir, r.cfg.Gzip)
		if err != nil {
			return nil, err
		}
	}
	measurements := selector.Filter(all, r.cfg.Measurements, r.cfg.FromMeasurement)
	if len(measurements) == 0 {
		return nil, errors.Wrap(errors.ErrNothingToRestore,
			"no backup files matched; gzipped backups need the gzip option")
	}
	return measurements, nil
}

func (r *Runner) restoreOne(ctx context.Context, measurement string, tally *stats.Tally) {
	log := logging.Measurement("restore", measurement)
	log.Info("restoring")

	src, err := backup.OpenReader(r.cfg.Dir, measurement, r.cfg.Gzip)
	if err != nil {
		tally.AddFailure(measurement, err)
		log.Error("restore failed", "error", err)
		return
	}
	defer src.Close()

	transfer, err := r.loader.Restore(ctx, r.cfg.Target, measurement, src, &r.stopped)
	if err != nil {
		tally.AddFailure(measurement, err)
		log.Error("restore failed", "error", err)
		return
	}

	summary := transfer.Summary()
	tally.AddSuccess(summary)
	log.Info("restored", "points", summary.Points, "chunks", summary.Chunks)
}
