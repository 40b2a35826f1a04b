// Package blast runs NCBI BLAST+ protein searches and decodes their
// single-file JSON report.
package blast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/metrics"
)

const (
	dbFasta     = "db.fasta"
	dbName      = "antigen.db"
	queryFasta  = "query.fasta"
	resultsFile = "antigen.results"
	// outfmtJSON is BLAST's single-file JSON report.
	outfmtJSON = "15"
)

// Config locates the BLAST+ binaries.
type Config struct {
	MakeBlastDB string `yaml:"makeblastdb"`
	Blastp      string `yaml:"blastp"`
	Threads     int    `yaml:"threads"`
	// TempDir is the parent of the per-search working directory.
	TempDir string `yaml:"temp_dir"`
}

// DefaultConfig resolves the binaries from PATH.
func DefaultConfig() Config {
	return Config{MakeBlastDB: "makeblastdb", Blastp: "blastp", Threads: 4}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MakeBlastDB == "" {
		c.MakeBlastDB = d.MakeBlastDB
	}
	if c.Blastp == "" {
		c.Blastp = d.Blastp
	}
	if c.Threads <= 0 {
		c.Threads = d.Threads
	}
	return c
}

// ToolError reports a BLAST+ binary that could not run or exited non-zero.
type ToolError struct {
	Tool     string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s returned exit code of %d\n\nSTDOUT: %s\n\nSTDERR: %s", e.Tool, e.ExitCode, e.Stdout, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner executes makeblastdb and blastp in a scratch directory.
type Runner struct {
	cfg      Config
	logger   *zap.Logger
	recorder metrics.Recorder
}

// NewRunner builds a runner. A nil logger or recorder is replaced by a no-op.
func NewRunner(cfg Config, logger *zap.Logger, recorder metrics.Recorder) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg.WithDefaults(), logger: logger, recorder: metrics.OrNop(recorder)}
}

// Search builds a protein database from db and searches it with query,
// both FASTA text. It returns the raw JSON report.
func (r *Runner) Search(ctx context.Context, db, query []byte) (report []byte, err error) {
	defer metrics.Since(ctx, r.recorder, metrics.OpBlast, time.Now(), &err)

	dir, err := os.MkdirTemp(r.cfg.TempDir, "blast-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, dbFasta), db, 0o644); err != nil {
		return nil, err
	}
	if err := r.run(ctx, dir, r.cfg.MakeBlastDB, "-in", dbFasta, "-dbtype", "prot", "-out", dbName); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, queryFasta), query, 0o644); err != nil {
		return nil, err
	}
	if err := r.run(ctx, dir, r.cfg.Blastp,
		"-db", dbName,
		"-query", queryFasta,
		"-outfmt", outfmtJSON,
		"-out", resultsFile,
		"-num_threads", strconv.Itoa(r.cfg.Threads),
	); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(dir, resultsFile))
}

func (r *Runner) run(ctx context.Context, dir, tool string, args ...string) error {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("blast tool finished",
		zap.String("tool", filepath.Base(tool)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	if err == nil {
		return nil
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ToolError{
		Tool:     filepath.Base(tool),
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      err,
	}
}
