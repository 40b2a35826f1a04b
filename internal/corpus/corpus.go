// Package corpus reads the stored AIRR tables of sequencing runs and
// labels every row with its nanobody autoname.
package corpus

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkoziy/antigen/sequencing/internal/airr"
	"github.com/mkoziy/antigen/sequencing/internal/autoname"
	"github.com/mkoziy/antigen/sequencing/internal/metrics"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
)

// DefaultConcurrency bounds parallel table reads.
const DefaultConcurrency = 8

// Record is one AIRR row with the run page it came from and its autoname.
type Record struct {
	RunID    int64  `json:"sequencing_run"`
	Page     int    `json:"seq"`
	Autoname string `json:"nanobody_autoname"`
	airr.Row
}

// Reader loads AIRR tables from storage.
type Reader struct {
	db          bun.IDB
	store       storage.Store
	logger      *zap.Logger
	recorder    metrics.Recorder
	concurrency int
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Reader) { r.recorder = metrics.OrNop(rec) }
}

// WithConcurrency bounds the number of tables read at once.
func WithConcurrency(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewReader returns a Reader over db and store.
func NewReader(db bun.IDB, store storage.Store, opts ...Option) *Reader {
	r := &Reader{
		db:          db,
		store:       store,
		logger:      zap.NewNop(),
		recorder:    metrics.Nop{},
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Namer builds the autoname resolver for a run from its manifest and the
// ELISA plates it references.
func (r *Reader) Namer(ctx context.Context, run *models.SequencingRun) (*autoname.Namer, error) {
	elisa, err := repositories.ElisaWellsOnPlates(ctx, r.db, run.ElisaPlateIDs())
	if err != nil {
		return nil, fmt.Errorf("load elisa wells for run %d: %w", run.ID, err)
	}
	manifest := make([]autoname.ManifestWell, 0, len(run.Wells))
	for _, w := range run.Wells {
		manifest = append(manifest, autoname.ManifestWell{
			Page:          w.Plate,
			Location:      w.Location,
			ElisaPlate:    w.ElisaWell.Plate,
			ElisaLocation: w.ElisaWell.Location,
		})
	}
	wells := make([]autoname.ElisaWell, 0, len(elisa))
	for _, w := range elisa {
		wells = append(wells, toNamerWell(w))
	}
	n := autoname.New(manifest, wells)
	if n.Disambiguated() {
		r.logger.Debug("antigen and concentration repeat across ELISA plates, suffixing names with the plate index",
			zap.Int64("run", run.ID), zap.Int("plates", len(run.ElisaPlateIDs())))
	}
	return n, nil
}

func toNamerWell(w *models.ElisaWell) autoname.ElisaWell {
	out := autoname.ElisaWell{Plate: w.PlateID, Location: w.Location}
	if w.Antigen != nil {
		out.Antigen = w.Antigen.ShortName
	}
	if p := w.Plate; p != nil {
		out.Concentration = p.PanRoundConcentration
		if lib := p.Library; lib != nil {
			out.Sublibrary = lib.SublibrarySuffix()
			if c := lib.Cohort; c != nil {
				out.CohortNum = c.CohortNum
				out.Naive = c.IsNaive
			}
		}
	}
	return out
}

// Run returns the records of every stored page of one run, ordered by page
// and then by table order. columns narrows the AIRR columns read.
func (r *Reader) Run(ctx context.Context, runID int64, columns ...string) ([]Record, error) {
	run, err := repositories.GetSequencingRun(ctx, r.db, runID)
	if err != nil {
		return nil, err
	}
	results, err := repositories.ListResults(ctx, r.db, runID)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, map[int64]*models.SequencingRun{run.ID: run}, results, columns)
}

// All returns the records of every stored page of every run.
func (r *Reader) All(ctx context.Context, columns ...string) ([]Record, error) {
	results, err := repositories.ListAllResults(ctx, r.db)
	if err != nil {
		return nil, err
	}
	runs := make(map[int64]*models.SequencingRun)
	for _, res := range results {
		if res.SequencingRun != nil {
			runs[res.SequencingRunID] = res.SequencingRun
		}
	}
	return r.read(ctx, runs, results, columns)
}

func (r *Reader) read(ctx context.Context, runs map[int64]*models.SequencingRun, results []*models.SequencingRunResults, columns []string) (out []Record, err error) {
	defer metrics.Since(ctx, r.recorder, metrics.OpCorpusScan, time.Now(), &err)
	columns = withSequenceID(columns)

	namers := make(map[int64]*autoname.Namer, len(runs))
	for id, run := range runs {
		n, err := r.Namer(ctx, run)
		if err != nil {
			return nil, err
		}
		namers[id] = n
	}

	for _, res := range results {
		if _, ok := namers[res.SequencingRunID]; !ok {
			return nil, fmt.Errorf("results %d: sequencing run %d not loaded", res.ID, res.SequencingRunID)
		}
	}

	tables := make([][]Record, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, res := range results {
		g.Go(func() error {
			recs, err := r.readTable(gctx, res, namers[res.SequencingRunID], columns)
			if err != nil {
				return err
			}
			tables[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range tables {
		out = append(out, t...)
	}
	r.logger.Debug("corpus scanned", zap.Int("tables", len(results)), zap.Int("rows", len(out)))
	return out, nil
}

func (r *Reader) readTable(ctx context.Context, res *models.SequencingRunResults, namer *autoname.Namer, columns []string) ([]Record, error) {
	data, err := storage.ReadAll(ctx, r.store, res.AIRRFile)
	if err != nil {
		return nil, fmt.Errorf("read AIRR table of run %d page %d: %w", res.SequencingRunID, res.Seq, err)
	}
	rows, err := airr.Parse(bytes.NewReader(data), columns...)
	if err != nil {
		return nil, fmt.Errorf("parse AIRR table of run %d page %d: %w", res.SequencingRunID, res.Seq, err)
	}
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, Record{
			RunID:    res.SequencingRunID,
			Page:     res.Seq,
			Autoname: namer.Name(res.Seq, res.WellPosOffset, row.SequenceID),
			Row:      row,
		})
	}
	return recs, nil
}

func withSequenceID(columns []string) []string {
	if len(columns) == 0 {
		return nil
	}
	for _, c := range columns {
		if c == airr.ColSequenceID {
			return columns
		}
	}
	return append([]string{airr.ColSequenceID}, columns...)
}
