package restore

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xtxerr/fluxdump/internal/backup"
	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/influx"
	"github.com/xtxerr/fluxdump/internal/lineprotocol"
	"github.com/xtxerr/fluxdump/internal/selector"
	"github.com/xtxerr/fluxdump/internal/stats"
)

// DefaultWriteChunkSize bounds how many points go into one write request.
// Restore batching is independent of how the backup was chunked during
// extraction.
const DefaultWriteChunkSize = 5000

// Loader replays one backup file into the target database. Lines are
// validated through the codec before writing: a backup is assumed to have
// been produced by this system, so any undecodable line means the file is
// corrupt and the measurement's restore is aborted rather than the line
// skipped.
type Loader struct {
	client     *influx.Client
	chunkSize  int
	chunkDelay time.Duration
	log        *slog.Logger
}

// NewLoader returns a loader writing batches of chunkSize points with
// chunkDelay pauses between consecutive batches.
func NewLoader(client *influx.Client, chunkSize int, chunkDelay time.Duration, log *slog.Logger) *Loader {
	if chunkSize <= 0 {
		chunkSize = DefaultWriteChunkSize
	}
	return &Loader{
		client:     client,
		chunkSize:  chunkSize,
		chunkDelay: chunkDelay,
		log:        log,
	}
}

// Restore streams one measurement's backup file into the target. Already
// written chunks stay committed when a later chunk fails; the error carries
// the failing chunk index so the operator can tell how far the restore got.
// A stop request takes effect after the in-flight chunk: remaining chunks
// are skipped and the measurement reported incomplete.
func (l *Loader) Restore(ctx context.Context, target selector.Target, measurement string, src *backup.Reader, stopped *atomic.Bool) (*stats.Transfer, error) {
	transfer := stats.NewTransfer(measurement)

	batch := make([]string, 0, l.chunkSize)
	var batchBytes int64
	chunk := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if chunk > 0 && l.chunkDelay > 0 {
			if err := sleep(ctx, l.chunkDelay); err != nil {
				return err
			}
		}
		start := time.Now()
		if err := l.client.Write(ctx, target.Database, target.RetentionPolicy, batch); err != nil {
			return &errors.MeasurementError{
				Measurement: measurement,
				Chunk:       chunk + 1,
				Err:         err,
			}
		}
		transfer.AddChunk(len(batch), batchBytes, time.Since(start))
		l.log.Debug("chunk written",
			"measurement", measurement, "chunk", chunk, "points", len(batch))
		chunk++
		batch = batch[:0]
		batchBytes = 0
		return nil
	}

	for {
		line, lineNo, ok := src.Next()
		if !ok {
			break
		}
		if _, err := lineprotocol.Decode(line); err != nil {
			return transfer, &errors.MeasurementError{
				Measurement: measurement,
				Line:        lineNo,
				Err:         errors.Wrap(errors.ErrCorruptBackup, err.Error()),
			}
		}
		batch = append(batch, line)
		batchBytes += int64(len(line)) + 1
		if len(batch) == l.chunkSize {
			if err := flush(); err != nil {
				return transfer, err
			}
			if stopped != nil && stopped.Load() {
				// A stop at the end of the file is not an incomplete restore.
				if _, _, more := src.Next(); !more && src.Err() == nil {
					return transfer, nil
				}
				return transfer, &errors.MeasurementError{
					Measurement: measurement,
					Err:         errors.Wrap(errors.ErrStopped, "measurement incomplete"),
				}
			}
		}
	}
	if err := src.Err(); err != nil {
		return transfer, &errors.MeasurementError{Measurement: measurement, Err: err}
	}
	if err := flush(); err != nil {
		return transfer, err
	}
	return transfer, nil
}

// sleep blocks for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
