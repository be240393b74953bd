// Command ingest loads one delimited or spreadsheet file into a new table.
//
// A run that is interrupted (Ctrl-C, SIGTERM) pauses at a row boundary and
// leaves a checkpoint; running the same job again resumes from it.
//
//	ingest -table orders -source uploads/orders.csv
//	ingest -job orders.hcl
//	ingest -job orders.hcl -terminate
//	ingest -init orders.hcl -table orders -source uploads/orders.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/logging"
	"github.com/JonMunkholm/tabload/internal/source"
)

type options struct {
	jobPath    string
	initPath   string
	table      string
	source     string
	delimiter  string
	sheet      string
	nullMarker string
	terminate  bool
	progress   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.jobPath, "job", "", "HCL job file")
	flag.StringVar(&opts.initPath, "init", "", "write a job file for -table/-source to this path and exit")
	flag.StringVar(&opts.table, "table", "", "destination table (overrides the job file)")
	flag.StringVar(&opts.source, "source", "", "source file (overrides the job file)")
	flag.StringVar(&opts.delimiter, "delimiter", "", `field delimiter, e.g. ";" or "tab" (default: detect)`)
	flag.StringVar(&opts.sheet, "sheet", "", "worksheet to read from a spreadsheet (default: first)")
	flag.StringVar(&opts.nullMarker, "null", "", `literal stored as NULL (default "NA")`)
	flag.BoolVar(&opts.terminate, "terminate", false, "drop the table and discard the checkpoint")
	flag.DurationVar(&opts.progress, "progress", 2*time.Second, "progress report interval, 0 to disable")
	flag.Parse()

	_ = godotenv.Load()
	slog.SetDefault(logging.New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")))

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "ingest:", describe(err))
		os.Exit(1)
	}
}

func run(opts options) error {
	job, err := buildJob(opts)
	if err != nil {
		return err
	}
	if opts.initPath != "" {
		if err := config.ExportJob(opts.initPath, job); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", opts.initPath)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, pool, err := databaseSettings(job)
	if err != nil {
		return err
	}
	backend, err := database.Connect(context.Background(), driver, pool)
	if err != nil {
		return err
	}
	defer backend.Close()
	if err := backend.InitCheckpoints(ctx); err != nil {
		return err
	}

	srcOpts := job.SourceOptions()
	manager := core.NewManager(core.ManagerConfig{
		Exec: backend.Exec,
		Open: func(path string) (core.RowSource, error) {
			return source.Open(path, srcOpts)
		},
		NullMarker:         job.NullMarker,
		Checkpoints:        backend.Checkpoints,
		CheckpointInterval: job.CheckpointInterval,
		MaxConcurrent:      1,
		MaxWait:            time.Second,
	})

	sess, resumed, err := openSession(ctx, manager, job)
	if err != nil {
		return err
	}

	if opts.terminate {
		if err := sess.Terminate(ctx); err != nil {
			return err
		}
		fmt.Printf("dropped table %s\n", job.Table)
		return nil
	}

	if opts.progress > 0 {
		go report(ctx, sess, opts.progress)
	}

	if resumed {
		fmt.Printf("resuming %s at row %d of %d\n", job.Table, sess.RowsConsumed(), sess.TotalRows())
		err = sess.Resume(ctx)
	} else {
		err = sess.Start(ctx)
	}
	if err != nil {
		return err
	}

	if sess.Complete() {
		fmt.Printf("loaded %d rows into %s\n", sess.RowsConsumed(), job.Table)
		return nil
	}
	fmt.Printf("paused %s at row %d of %d (%.1f%%); run again to resume\n",
		job.Table, sess.RowsConsumed(), sess.TotalRows(), sess.Progress())
	return nil
}

// buildJob merges the job file, if any, with flag overrides.
func buildJob(opts options) (*config.Job, error) {
	job := config.DefaultJob()
	if opts.jobPath != "" {
		loaded, err := config.LoadJob(opts.jobPath)
		if err != nil {
			return nil, err
		}
		job = loaded
	}

	if opts.table != "" {
		job.Table = opts.table
	}
	if opts.source != "" {
		job.Source = opts.source
	}
	if opts.delimiter != "" {
		job.Delimiter = opts.delimiter
	}
	if opts.sheet != "" {
		job.Sheet = opts.sheet
	}
	if opts.nullMarker != "" {
		job.NullMarker = opts.nullMarker
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// databaseSettings prefers the job's database block over the environment.
func databaseSettings(job *config.Job) (string, database.PoolConfig, error) {
	if job.Database != nil {
		driver := job.Database.Driver
		if driver == "" {
			driver = "postgres"
		}
		return driver, database.PoolConfig{URL: job.Database.URL}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return "", database.PoolConfig{}, err
	}
	return cfg.Database.Driver, cfg.Database.PoolConfig(), nil
}

// openSession restores the table's checkpoint when there is one and
// otherwise creates a fresh session.
func openSession(ctx context.Context, m *core.Manager, job *config.Job) (*core.Session, bool, error) {
	sess, err := m.Restore(ctx, job.Table)
	switch {
	case err == nil:
		if cp := sess.Snapshot().SourcePath; cp != filepath.Clean(job.Source) {
			slog.Warn("checkpoint source differs from job source; resuming the checkpoint",
				"checkpoint_source", cp,
				"job_source", job.Source,
			)
		}
		return sess, true, nil
	case errors.Is(err, database.ErrNoCheckpoint):
		sess, err := m.Create(job.Table, job.Source)
		return sess, false, err
	default:
		return nil, false, err
	}
}

func report(ctx context.Context, sess *core.Session, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.State() != core.Running {
				continue
			}
			slog.Info("progress",
				"table", sess.Table(),
				"rows", sess.RowsConsumed(),
				"total_rows", sess.TotalRows(),
				"percent", fmt.Sprintf("%.1f", sess.Progress()),
			)
		}
	}
}

// describe prefers the user-facing message and falls back to the raw error.
func describe(err error) string {
	if core.IsUserFacing(err) {
		return core.FormatUserError(err)
	}
	return err.Error()
}
