// fluxdump backs up InfluxDB measurements to line-protocol files and
// restores them, with optional Parquet archiving and DuckDB loading.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goprompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/fluxdump/internal/analytical"
	"github.com/xtxerr/fluxdump/internal/archive"
	"github.com/xtxerr/fluxdump/internal/backup"
	"github.com/xtxerr/fluxdump/internal/config"
	"github.com/xtxerr/fluxdump/internal/dump"
	"github.com/xtxerr/fluxdump/internal/errors"
	"github.com/xtxerr/fluxdump/internal/influx"
	"github.com/xtxerr/fluxdump/internal/logging"
	"github.com/xtxerr/fluxdump/internal/restore"
	"github.com/xtxerr/fluxdump/internal/selector"
	"github.com/xtxerr/fluxdump/internal/stats"
	"github.com/xtxerr/fluxdump/internal/timerange"
)

// Version is set at build time via ldflags
var Version = "dev"

type options struct {
	cfg *config.Config

	dumpMode    bool
	dumpDB      string
	dumpSince   string
	dumpUntil   string
	dumpDaily   bool
	restoreMode bool
	restoreDB   string
	restoreRP   string
	loadMode    bool
	archiveMode bool
	archiveDir  string
	yes         bool
}

func main() {
	cfgPath := flag.String("config", "", "config file path (optional)")
	url := flag.String("url", "", "InfluxDB URL including schema and port")
	user := flag.String("user", "", "InfluxDB username; password from INFLUX_PW env or prompt")
	dir := flag.String("dir", "", "directory for backup files")
	measurements := flag.String("measurements", "", "comma-separated list of measurements to dump/restore")
	fromMeasurement := flag.String("from-measurement", "", "dump/restore from this measurement and on (ignored with -measurements)")
	gzipFlag := flag.Bool("gzip", false, "dump/restore into/from gzipped files")
	parallel := flag.Int("parallel", 0, "dump this many measurements concurrently")

	dumpMode := flag.Bool("dump", false, "create a backup")
	dumpDB := flag.String("dump-db", "", "database to dump")
	dumpSince := flag.String("dump-since", "", "start date YYYY-MM-DD (from 00:00:00 UTC) or RFC3339")
	dumpUntil := flag.String("dump-until", "", "end date YYYY-MM-DD (exclusive) or RFC3339")
	dumpDaily := flag.Bool("dump-daily", false, "partition the dump range into UTC days")

	restoreMode := flag.Bool("restore", false, "restore from a backup")
	restoreDB := flag.String("restore-db", "", "database target of restore")
	restoreRP := flag.String("restore-rp", "", "retention policy to restore to")
	chunkDelay := flag.Duration("restore-chunk-delay", 0, "delay between restore chunks")
	measurementDelay := flag.Duration("restore-measurement-delay", 0, "delay between restored measurements")

	loadMode := flag.Bool("load", false, "load backup files into a DuckDB database")
	archiveMode := flag.Bool("archive", false, "convert backup files into Parquet archives")
	archiveDir := flag.String("archive-dir", "", "output directory for -archive (defaults to <dir>)")

	yes := flag.Bool("yes", false, "skip the restore confirmation prompt")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	flag.Parse()

	logging.Init(parseLevel(*logLevel), *logJSON)
	logging.Info("fluxdump starting", "version", Version)

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fatal("load config", err)
		}
	}

	// Flags override file values.
	if *url != "" {
		cfg.URL = *url
	}
	if *user != "" {
		cfg.User = *user
	}
	if *dir != "" {
		cfg.Dir = *dir
	}
	if *measurements != "" {
		cfg.Measurements = splitList(*measurements)
	}
	if *fromMeasurement != "" {
		cfg.FromMeasurement = *fromMeasurement
	}
	if *gzipFlag {
		cfg.Gzip = true
	}
	if *parallel > 0 {
		cfg.Parallel = *parallel
	}
	if *chunkDelay > 0 {
		cfg.ChunkDelay = config.Duration(*chunkDelay)
	}
	if *measurementDelay > 0 {
		cfg.MeasurementDelay = config.Duration(*measurementDelay)
	}

	opts := &options{
		cfg:         cfg,
		dumpMode:    *dumpMode,
		dumpDB:      *dumpDB,
		dumpSince:   *dumpSince,
		dumpUntil:   *dumpUntil,
		dumpDaily:   *dumpDaily,
		restoreMode: *restoreMode,
		restoreDB:   *restoreDB,
		restoreRP:   *restoreRP,
		loadMode:    *loadMode,
		archiveMode: *archiveMode,
		archiveDir:  *archiveDir,
		yes:         *yes,
	}

	switch {
	case opts.dumpMode:
		os.Exit(runDump(opts))
	case opts.restoreMode:
		os.Exit(runRestore(opts))
	case opts.loadMode:
		os.Exit(runLoad(opts))
	case opts.archiveMode:
		os.Exit(runArchive(opts))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runDump(opts *options) int {
	if opts.dumpDB == "" {
		fmt.Fprintln(os.Stderr, "-dump-db is required with -dump")
		return 2
	}
	rng, err := timerange.Parse(opts.dumpSince, opts.dumpUntil)
	if err != nil {
		fatal("parse dump range", err)
	}
	mode := timerange.ModeSingle
	if opts.dumpDaily {
		mode = timerange.ModeDaily
	}

	client := newClient(opts.cfg)
	writer, err := backup.NewWriter(opts.cfg.Dir, opts.cfg.Gzip)
	if err != nil {
		fatal("open backup directory", err)
	}

	runner, err := dump.New(dump.Config{
		Client:          client,
		Writer:          writer,
		Source:          selector.Target{Database: opts.dumpDB},
		Range:           rng,
		Mode:            mode,
		Measurements:    opts.cfg.Measurements,
		FromMeasurement: opts.cfg.FromMeasurement,
		ChunkSize:       opts.cfg.ReadChunkSize,
		Parallel:        opts.cfg.Parallel,
	})
	if err != nil {
		fatal("configure dump", err)
	}

	return runWithStop(runner.Stop, func(ctx context.Context) (*stats.Tally, error) {
		return runner.Run(ctx)
	})
}

func runRestore(opts *options) int {
	if opts.restoreDB == "" {
		fmt.Fprintln(os.Stderr, "-restore-db is required with -restore")
		return 2
	}

	target, err := selector.NewTarget(opts.restoreDB, opts.restoreRP)
	if err != nil {
		fatal("resolve restore target", err)
	}

	confirm := confirmRestore
	if opts.yes {
		confirm = nil
	}

	runner, err := restore.New(restore.Config{
		Client:           newClient(opts.cfg),
		Dir:              opts.cfg.Dir,
		Gzip:             opts.cfg.Gzip,
		Target:           target,
		Measurements:     opts.cfg.Measurements,
		FromMeasurement:  opts.cfg.FromMeasurement,
		ChunkSize:        opts.cfg.WriteChunkSize,
		ChunkDelay:       opts.cfg.ChunkDelay.Duration(),
		MeasurementDelay: opts.cfg.MeasurementDelay.Duration(),
		Confirm:          confirm,
	})
	if err != nil {
		fatal("configure restore", err)
	}

	return runWithStop(runner.Stop, func(ctx context.Context) (*stats.Tally, error) {
		return runner.Run(ctx)
	})
}

func runLoad(opts *options) int {
	loader, err := analytical.New(analytical.Config{
		DSN:                opts.cfg.Analytical.DSN,
		Dir:                opts.cfg.Dir,
		Gzip:               opts.cfg.Gzip,
		Measurements:       opts.cfg.Measurements,
		FromMeasurement:    opts.cfg.FromMeasurement,
		IgnoreMeasurements: opts.cfg.IgnoreMeasurements,
		ChunkSize:          opts.cfg.Analytical.ChunkSize,
		AutoCreateSchema:   opts.cfg.Analytical.AutoCreateSchema,
		AutoDropSchema:     opts.cfg.Analytical.AutoDropSchema,
	})
	if err != nil {
		fatal("configure analytical load", err)
	}
	defer loader.Close()

	return runWithStop(nil, func(ctx context.Context) (*stats.Tally, error) {
		return loader.Run(ctx)
	})
}

func runArchive(opts *options) int {
	outDir := opts.archiveDir
	if outDir == "" {
		outDir = opts.cfg.Dir
	}

	all, err := backup.List(opts.cfg.Dir, opts.cfg.Gzip)
	if err != nil {
		fatal("list backup files", err)
	}
	names := selector.Filter(all, opts.cfg.Measurements, opts.cfg.FromMeasurement)
	if len(names) == 0 {
		fatal("archive", errors.ErrNothingToRestore)
	}

	code := 0
	for _, m := range names {
		n, err := archive.WriteMeasurement(opts.cfg.Dir, outDir, m, opts.cfg.Gzip)
		if err != nil {
			logging.Error("archive failed", "measurement", m, "error", err)
			code = 1
			continue
		}
		logging.Info("archived", "measurement", m, "points", n)
	}
	return code
}

// runWithStop runs fn with SIGINT/SIGTERM wired to a clean stop: the first
// signal requests a chunk-boundary halt, a second one cancels outright.
func runWithStop(stop func(), fn func(context.Context) (*stats.Tally, error)) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		logging.Info("stop requested, finishing in-flight chunk")
		if stop != nil {
			stop()
		} else {
			cancel()
			return
		}
		<-sig
		cancel()
	}()

	start := time.Now()
	tally, err := fn(ctx)
	if errors.Is(err, errors.ErrNotConfirmed) {
		logging.Info("restore aborted")
		return 0
	}
	if err != nil {
		logging.Error("run failed", "error", err)
		return 1
	}
	logging.Info("done", "elapsed", time.Since(start).Round(time.Second).String())
	if tally.HasFailures() {
		return 1
	}
	return 0
}

func newClient(cfg *config.Config) *influx.Client {
	client, err := influx.New(influx.Config{
		URL:          cfg.URL,
		Username:     cfg.User,
		Password:     resolvePassword(cfg),
		Timeout:      cfg.Timeout.Duration(),
		WriteRetries: cfg.WriteRetries,
		RetryDelay:   cfg.RetryDelay.Duration(),
	})
	if err != nil {
		fatal("configure client", err)
	}
	return client
}

// resolvePassword takes the password from the config file, then INFLUX_PW,
// then an interactive prompt.
func resolvePassword(cfg *config.Config) string {
	if cfg.Password != "" {
		return cfg.Password
	}
	if pw := os.Getenv("INFLUX_PW"); pw != "" {
		return pw
	}
	if cfg.User == "" {
		return ""
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatal("read password", err)
	}
	return string(pw)
}

// confirmRestore asks the operator to type "yes" before anything is written.
func confirmRestore(target selector.Target, measurements []string) bool {
	fmt.Println("Files:")
	fmt.Println(strings.Join(measurements, ", "))
	fmt.Println()

	answer := goprompt.Input(
		fmt.Sprintf("> Confirm restore into %q db? [yes/no] ", target.Database),
		func(d goprompt.Document) []goprompt.Suggest {
			return goprompt.FilterHasPrefix([]goprompt.Suggest{
				{Text: "yes", Description: "start the restore"},
				{Text: "no", Description: "abort"},
			}, d.GetWordBeforeCursor(), true)
		})
	return strings.TrimSpace(answer) == "yes"
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatal(msg string, err error) {
	logging.Error(msg, "error", err)
	os.Exit(1)
}
