package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/airr"
	"github.com/mkoziy/antigen/sequencing/internal/fasta"
	"github.com/mkoziy/antigen/sequencing/internal/metrics"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/reconcile"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/sequences"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
)

// Content types of the stored files.
const (
	contentTypeZip  = "application/zip"
	contentTypeTSV  = "text/tab-separated-values"
	contentTypeText = "text/plain"
)

// Upload is one results archive for a run page.
type Upload struct {
	RunID    int64
	Page     int
	Filename string
	Data     []byte
	AddedBy  string
}

// UploadResult describes a stored upload.
type UploadResult struct {
	Results *models.SequencingRunResults
	// Offset is the forward plate shift detected in the upload.
	Offset int
	// Nanobodies holds the ids of linked nanobodies.
	Nanobodies []int64
	// Duplicates lists sequence ids that appeared more than once in the
	// archive; the last file won.
	Duplicates []string
	// Replaced is true when an earlier upload of the page was overwritten.
	Replaced bool
}

// UploadResults validates an archive against the run manifest, aligns its
// sequences, stores the archive with the derived V-QUEST files and records
// the results row. Nothing is persisted unless every step succeeds.
func (s *Service) UploadResults(ctx context.Context, u Upload) (out *UploadResult, err error) {
	defer metrics.Since(ctx, s.recorder, metrics.OpUpload, time.Now(), &err)
	log := s.logger.With(zap.Int64("run", u.RunID), zap.Int("page", u.Page))

	if !strings.HasSuffix(strings.ToLower(u.Filename), ".zip") {
		return nil, invalid(nil, "results file must be a .zip archive, got %q", u.Filename)
	}
	run, err := s.lookupRun(ctx, u.RunID)
	if err != nil {
		return nil, err
	}
	expected := run.ExpectedLabels(u.Page)
	if len(expected) == 0 {
		return nil, invalid(nil, "plate index %d not found in sequencing run %d", u.Page, u.RunID)
	}

	version := 0
	current, err := repositories.GetResults(ctx, s.db, u.RunID, u.Page)
	switch {
	case err == nil:
		version = current.Version
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	src, err := sequences.FromBytes(u.Data)
	if err != nil {
		return nil, invalid(err, "unreadable results archive %q", u.Filename)
	}
	coll, err := sequences.Load(src)
	if err != nil {
		return nil, err
	}
	if dups := coll.Duplicates(); len(dups) > 0 {
		log.Warn("duplicate sequence ids in upload, keeping the last file", zap.Strings("ids", dups))
	}

	if err := reconcile.CheckCount(len(expected), coll.Len()); err != nil {
		return nil, err
	}
	rec, err := reconcile.Reconcile(expected, coll.IDs())
	if err != nil {
		return nil, err
	}

	records := make([]fasta.Record, 0, coll.Len())
	for _, id := range coll.IDs() {
		seq, _ := coll.Get(id)
		records = append(records, fasta.Record{ID: id, Seq: seq})
	}
	bundle, err := s.aligner.Align(ctx, records)
	if err != nil {
		return nil, err
	}

	nanobodyIDs, err := s.linkNanobodies(ctx, bundle.AIRR)
	if err != nil {
		return nil, err
	}

	keys, err := s.putFiles(ctx, u, bundle.Parameters, bundle.AIRR)
	if err != nil {
		return nil, err
	}
	res := &models.SequencingRunResults{
		SequencingRunID: u.RunID,
		Seq:             u.Page,
		SeqresFile:      keys.archive,
		ParametersFile:  keys.parameters,
		AIRRFile:        keys.airr,
		WellPosOffset:   rec.Offset,
		AddedBy:         u.AddedBy,
	}
	previous, err := repositories.SaveResults(ctx, s.db, res, nanobodyIDs, version)
	if err != nil {
		if derr := storage.DeleteAll(context.WithoutCancel(ctx), s.store, keys.all()...); derr != nil {
			log.Warn("release files of failed upload", zap.Error(derr))
		}
		if errors.Is(err, repositories.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrResultsConflict, err)
		}
		return nil, fmt.Errorf("save results: %w", err)
	}
	if previous != nil {
		old := []string{previous.SeqresFile, previous.ParametersFile, previous.AIRRFile}
		if derr := storage.DeleteAll(context.WithoutCancel(ctx), s.store, old...); derr != nil {
			log.Warn("release files of replaced upload", zap.Error(derr))
		}
	}

	log.Info("results stored",
		zap.Int64("results", res.ID),
		zap.Int("wells", coll.Len()),
		zap.Int("offset", rec.Offset),
		zap.Int("nanobodies", len(nanobodyIDs)),
		zap.Bool("replaced", previous != nil),
	)
	return &UploadResult{
		Results:    res,
		Offset:     rec.Offset,
		Nanobodies: nanobodyIDs,
		Duplicates: coll.Duplicates(),
		Replaced:   previous != nil,
	}, nil
}

// linkNanobodies finds nanobodies whose sequence equals an aligned protein.
func (s *Service) linkNanobodies(ctx context.Context, table []byte) ([]int64, error) {
	rows, err := airr.Parse(bytes.NewReader(table), airr.ColSequenceID, airr.ColSequenceAlignmentAA)
	if errors.Is(err, airr.ErrEmptyTable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alignment results: %w", err)
	}
	seen := make(map[string]bool, len(rows))
	var seqs []string
	for i := range rows {
		p := rows[i].ProteinSequence()
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		seqs = append(seqs, p)
	}
	nbs, err := repositories.NanobodiesBySequence(ctx, s.db, seqs)
	if err != nil {
		return nil, fmt.Errorf("match nanobodies: %w", err)
	}
	ids := make([]int64, 0, len(nbs))
	for _, nb := range nbs {
		ids = append(ids, nb.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type fileKeys struct {
	archive, parameters, airr string
}

func (k fileKeys) all() []string {
	return []string{k.archive, k.parameters, k.airr}
}

// ResultsFileName names a derived file of a run page.
func ResultsFileName(runID int64, page int, suffix string) string {
	return fmt.Sprintf("SequencingResults_%d_%d_%s", runID, page, suffix)
}

// putFiles writes the three files of an upload under a fresh prefix so an
// upload never overwrites the files of the row it replaces.
func (s *Service) putFiles(ctx context.Context, u Upload, params, table []byte) (fileKeys, error) {
	prefix := path.Join("seqruns", fmt.Sprint(u.RunID), fmt.Sprint(u.Page), uuid.NewString())
	name := path.Base(strings.ReplaceAll(u.Filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = ResultsFileName(u.RunID, u.Page, "seqres.zip")
	}
	keys := fileKeys{
		archive:    path.Join(prefix, name),
		parameters: path.Join(prefix, ResultsFileName(u.RunID, u.Page, "vquestparams.txt")),
		airr:       path.Join(prefix, ResultsFileName(u.RunID, u.Page, "vquestairr.tsv")),
	}
	files := []struct {
		key         string
		data        []byte
		contentType string
	}{
		{keys.archive, u.Data, contentTypeZip},
		{keys.parameters, params, contentTypeText},
		{keys.airr, table, contentTypeTSV},
	}
	var written []string
	for _, f := range files {
		if _, err := storage.PutBytes(ctx, s.store, f.key, f.data, f.contentType); err != nil {
			if derr := storage.DeleteAll(context.WithoutCancel(ctx), s.store, written...); derr != nil {
				s.logger.Warn("release partial upload", zap.Error(derr))
			}
			return fileKeys{}, fmt.Errorf("store %s: %w", path.Base(f.key), err)
		}
		written = append(written, f.key)
	}
	return keys, nil
}
