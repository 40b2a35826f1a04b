package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mkoziy/antigen/sequencing/internal/blast"
	"github.com/mkoziy/antigen/sequencing/internal/config"
	"github.com/mkoziy/antigen/sequencing/internal/database"
	"github.com/mkoziy/antigen/sequencing/internal/metrics"
	"github.com/mkoziy/antigen/sequencing/internal/pipeline"
	"github.com/mkoziy/antigen/sequencing/internal/ratelimit"
	"github.com/mkoziy/antigen/sequencing/internal/sources/imgt"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "antigen",
		Short:         "Reconcile nanobody sequencing results with their ELISA wells",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.migrateCmd(),
		c.seedCmd(),
		c.uploadCmd(),
		c.resultsCmd(),
		c.searchCDR3Cmd(),
		c.blastCmd(),
		c.fastaCmd(),
		c.plateLayoutCmd(),
		c.serveCmd(),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	c.logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// app holds the opened collaborators of one command invocation.
type app struct {
	db    *bun.DB
	store storage.Store
	svc   *pipeline.Service
}

func (a *app) Close() error {
	return a.db.Close()
}

// openDB opens the configured database without touching storage.
func (c *cli) openDB() (*bun.DB, error) {
	db, err := database.NewDB(c.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// open wires the pipeline. reg may be nil when no metrics are exported.
func (c *cli) open(ctx context.Context, reg prometheus.Registerer) (*app, error) {
	var recorder metrics.Recorder = metrics.Nop{}
	if reg != nil {
		p, err := metrics.NewPrometheus(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		recorder = p
	}

	db, err := c.openDB()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, c.cfg.Storage)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	aligner := imgt.NewClient(c.cfg.IMGT, ratelimit.New(c.cfg.IMGTRateLimit()),
		imgt.WithLogger(c.logger.Named("imgt")),
		imgt.WithRecorder(recorder),
	)
	runner := blast.NewRunner(c.cfg.Blast, c.logger.Named("blast"), recorder)
	svc := pipeline.New(db, store, aligner,
		pipeline.WithLogger(c.logger.Named("pipeline")),
		pipeline.WithRecorder(recorder),
		pipeline.WithBlaster(runner),
		pipeline.WithThresholds(c.cfg.Search),
		pipeline.WithCorpusConcurrency(c.cfg.CorpusConcurrency),
	)
	return &app{db: db, store: store, svc: svc}, nil
}

// withApp opens the pipeline for the duration of fn.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := c.open(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
