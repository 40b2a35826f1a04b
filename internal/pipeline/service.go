// Package pipeline ties the sequencing components together: it accepts
// results uploads for a run page, reconciles and aligns them, stores the
// derived files and answers listing, search and export requests.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/corpus"
	"github.com/mkoziy/antigen/sequencing/internal/fasta"
	"github.com/mkoziy/antigen/sequencing/internal/metrics"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/search"
	"github.com/mkoziy/antigen/sequencing/internal/sources/imgt"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
)

// Aligner submits nucleotide sequences for germline alignment.
// *imgt.Client implements it.
type Aligner interface {
	Align(ctx context.Context, records []fasta.Record) (*imgt.Bundle, error)
}

// Service runs the sequencing results workflow.
type Service struct {
	db          bun.IDB
	store       storage.Store
	aligner     Aligner
	blaster     search.Blaster
	corpus      *corpus.Reader
	thresholds  search.Thresholds
	logger      *zap.Logger
	recorder    metrics.Recorder
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) { s.recorder = metrics.OrNop(r) }
}

// WithBlaster enables similarity search.
func WithBlaster(b search.Blaster) Option {
	return func(s *Service) { s.blaster = b }
}

// WithThresholds overrides the similarity hit filter.
func WithThresholds(th search.Thresholds) Option {
	return func(s *Service) { s.thresholds = th.WithDefaults() }
}

// WithCorpusConcurrency bounds parallel AIRR table reads.
func WithCorpusConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// New returns a Service over db and store that aligns uploads with aligner.
func New(db bun.IDB, store storage.Store, aligner Aligner, opts ...Option) *Service {
	s := &Service{
		db:         db,
		store:      store,
		aligner:    aligner,
		thresholds: search.DefaultThresholds(),
		logger:     zap.NewNop(),
		recorder:   metrics.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	s.corpus = corpus.NewReader(db, store,
		corpus.WithLogger(s.logger.Named("corpus")),
		corpus.WithRecorder(s.recorder),
		corpus.WithConcurrency(s.concurrency),
	)
	return s
}

// Corpus returns the reader used for scans.
func (s *Service) Corpus() *corpus.Reader { return s.corpus }

// NewRun carries a sequencing run submission in its raw JSON form.
type NewRun struct {
	Wells           json.RawMessage `json:"wells"`
	PlateThresholds json.RawMessage `json:"plate_thresholds"`
	Notes           *string         `json:"notes,omitempty"`
	SentDate        *time.Time      `json:"sent_date,omitempty"`
	AddedBy         string          `json:"added_by"`
}

// CreateSequencingRun validates the manifest and thresholds and stores the
// run. Every ELISA plate the manifest references must exist.
func (s *Service) CreateSequencingRun(ctx context.Context, in NewRun) (*models.SequencingRun, error) {
	entries, err := models.DecodeWells(in.Wells)
	if err != nil {
		return nil, invalid(err, "invalid wells")
	}
	thresholds := models.PlateThresholds{}
	if len(in.PlateThresholds) > 0 {
		thresholds, err = models.DecodePlateThresholds(in.PlateThresholds)
		if err != nil {
			return nil, invalid(err, "invalid plate_thresholds")
		}
	}
	run := &models.SequencingRun{
		Wells:           entries,
		PlateThresholds: thresholds,
		Notes:           in.Notes,
		SentDate:        in.SentDate,
		AddedBy:         in.AddedBy,
	}
	plates := run.ElisaPlateIDs()
	found, err := repositories.ElisaWellsOnPlates(ctx, s.db, plates)
	if err != nil {
		return nil, err
	}
	known := make(map[int64]bool, len(plates))
	for _, w := range found {
		known[w.PlateID] = true
	}
	for _, p := range plates {
		if !known[p] {
			return nil, invalid(nil, "ELISA plate %d has no wells", p)
		}
	}
	if err := repositories.CreateSequencingRun(ctx, s.db, run); err != nil {
		return nil, err
	}
	s.logger.Info("sequencing run created", zap.Int64("run", run.ID), zap.Int("wells", len(run.Wells)))
	return run, nil
}

// Runs lists sequencing runs that have results.
func (s *Service) Runs(ctx context.Context) ([]*models.SequencingRun, error) {
	return repositories.ListSequencingRuns(ctx, s.db)
}

// Run fetches one sequencing run.
func (s *Service) Run(ctx context.Context, id int64) (*models.SequencingRun, error) {
	return repositories.GetSequencingRun(ctx, s.db, id)
}

func (s *Service) lookupRun(ctx context.Context, id int64) (*models.SequencingRun, error) {
	run, err := repositories.GetSequencingRun(ctx, s.db, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, invalid(err, "sequencing run %d does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load sequencing run %d: %w", id, err)
	}
	return run, nil
}
