package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/airr"
	"github.com/mkoziy/antigen/sequencing/internal/corpus"
	"github.com/mkoziy/antigen/sequencing/internal/fasta"
	"github.com/mkoziy/antigen/sequencing/internal/metrics"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/search"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// ResultRecord is one row of the results table of a run.
type ResultRecord struct {
	SequenceID       string `json:"sequence_id"`
	Productive       string `json:"productive"`
	StopCodon        string `json:"stop_codon"`
	FWR1AA           string `json:"fwr1_aa"`
	CDR1AA           string `json:"cdr1_aa"`
	FWR2AA           string `json:"fwr2_aa"`
	CDR2AA           string `json:"cdr2_aa"`
	FWR3AA           string `json:"fwr3_aa"`
	CDR3AA           string `json:"cdr3_aa"`
	NanobodyAutoname string `json:"nanobody_autoname"`
	// CDR3AACount is how often the CDR3 occurs across the run, zero for
	// rows without a CDR3.
	CDR3AACount int  `json:"cdr3_aa_count"`
	NewCDR3     bool `json:"new_cdr3"`
	// Sequence is the aligned protein without gaps.
	Sequence string `json:"sequence"`
}

// RunResults returns every AIRR row stored for a run, sorted with
// productive rows first, then by CDR3 frequency, CDR3 and sequence id.
func (s *Service) RunResults(ctx context.Context, runID int64) (out []ResultRecord, err error) {
	defer metrics.Since(ctx, s.recorder, metrics.OpResultsTable, time.Now(), &err)
	recs, err := s.corpus.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range recs {
		if r.CDR3AA != "" {
			counts[r.CDR3AA]++
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if c := compareDesc(a.Productive, b.Productive); c != 0 {
			return c < 0
		}
		if ca, cb := counts[a.CDR3AA], counts[b.CDR3AA]; ca != cb {
			return ca > cb
		}
		if c := compareAsc(a.CDR3AA, b.CDR3AA); c != 0 {
			return c < 0
		}
		return a.SequenceID < b.SequenceID
	})

	out = make([]ResultRecord, 0, len(recs))
	for i, r := range recs {
		out = append(out, ResultRecord{
			SequenceID:       r.SequenceID,
			Productive:       yesNo(r.Productive),
			StopCodon:        yesNo(r.StopCodon),
			FWR1AA:           r.FWR1AA,
			CDR1AA:           r.CDR1AA,
			FWR2AA:           r.FWR2AA,
			CDR2AA:           r.CDR2AA,
			FWR3AA:           r.FWR3AA,
			CDR3AA:           r.CDR3AA,
			NanobodyAutoname: r.Autoname,
			CDR3AACount:      counts[r.CDR3AA],
			NewCDR3:          i == 0 || r.CDR3AA == "" || recs[i-1].CDR3AA != r.CDR3AA,
			Sequence:         r.ProteinSequence(),
		})
	}
	return out, nil
}

// compareDesc orders non-empty values descending with blanks last.
func compareDesc(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	return -strings.Compare(a, b)
}

// compareAsc orders non-empty values ascending with blanks last.
func compareAsc(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	return strings.Compare(a, b)
}

func yesNo(flag string) string {
	switch flag {
	case "T":
		return "Y"
	case "F":
		return "N"
	}
	return flag
}

var cdr3Query = regexp.MustCompile(`^[A-Za-z]+$`)

// SearchCDR3 returns every stored row whose CDR3 contains query.
func (s *Service) SearchCDR3(ctx context.Context, query string) (out []corpus.Record, err error) {
	defer metrics.Since(ctx, s.recorder, metrics.OpCDR3Search, time.Now(), &err)
	if !cdr3Query.MatchString(query) {
		return nil, invalid(nil, "CDR3 query must consist of letters only, got %q", query)
	}
	recs, err := s.corpus.All(ctx)
	if err != nil {
		return nil, err
	}
	return search.CDR3(recs, query), nil
}

// Blast searches the sequences of a run against the whole corpus. mode is
// full or cdr3.
func (s *Service) Blast(ctx context.Context, runID int64, mode search.Mode) ([]search.Hit, error) {
	if mode != search.ModeFull && mode != search.ModeCDR3 {
		return nil, invalid(nil, "unknown query type %q", mode)
	}
	if s.blaster == nil {
		return nil, ErrSearchUnavailable
	}
	query, err := s.corpus.Run(ctx, runID, airr.ColSequenceID, airr.ColSequenceAlignmentAA, airr.ColCDR3AA)
	if err != nil {
		return nil, err
	}
	db, err := s.corpus.All(ctx, mode.Columns()...)
	if err != nil {
		return nil, err
	}
	hits, err := search.Similarity(ctx, s.blaster, query, db, mode, s.thresholds)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("similarity search done",
		zap.Int64("run", runID),
		zap.String("mode", string(mode)),
		zap.Int("query", len(query)),
		zap.Int("corpus", len(db)),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

// CorpusFASTA exports stored sequences as one FASTA text. A nil runID
// exports every run.
func (s *Service) CorpusFASTA(ctx context.Context, runID *int64, mode search.Mode) (out []byte, err error) {
	defer metrics.Since(ctx, s.recorder, metrics.OpFastaExport, time.Now(), &err)
	var recs []corpus.Record
	if runID != nil {
		recs, err = s.corpus.Run(ctx, *runID, mode.Columns()...)
	} else {
		recs, err = s.corpus.All(ctx, mode.Columns()...)
	}
	if err != nil {
		return nil, err
	}
	records, err := search.FASTA(recs, mode)
	if err != nil {
		return nil, err
	}
	return []byte(fasta.Format(records)), nil
}

// PlateLayoutTSV renders the submission sheet of one run page: an 8 by 12
// grid whose cells name the ELISA well and antigen sent to each position and
// flag the functional hits.
func (s *Service) PlateLayoutTSV(ctx context.Context, runID int64, page int) (string, error) {
	run, err := repositories.GetSequencingRun(ctx, s.db, runID)
	if err != nil {
		return "", err
	}
	if len(run.PageWells(page)) == 0 {
		return "", invalid(nil, "plate index %d not found in sequencing run %d", page, runID)
	}
	elisa, err := repositories.ElisaWellsOnPlates(ctx, s.db, run.ElisaPlateIDs())
	if err != nil {
		return "", err
	}
	type pos struct {
		plate int64
		loc   int
	}
	byPos := make(map[pos]*models.ElisaWell, len(elisa))
	for _, w := range elisa {
		byPos[pos{w.PlateID, w.Location}] = w
	}

	// Cells read "<elisa plate>:<well> [<antigen>]", with a trailing "*"
	// when the well's reading reaches its plate threshold.
	cells := make([]string, wells.PlateSize)
	for loc := 1; loc <= wells.PlateSize; loc++ {
		ref, ok := run.ElisaWellAt(page, loc)
		if !ok {
			continue
		}
		w := byPos[pos{ref.Plate, ref.Location}]
		if w == nil {
			w = &models.ElisaWell{PlateID: ref.Plate, Location: ref.Location}
		}
		antigen := ""
		if w.Antigen != nil {
			antigen = w.Antigen.ShortName
		}
		cell := fmt.Sprintf("%d:%s [%s]", ref.Plate, w.Label(), antigen)
		if w.FunctionalOnPlate() {
			cell += " *"
		}
		cells[loc-1] = cell
	}

	var sb strings.Builder
	sb.WriteByte('\t')
	for c := 1; c <= 12; c++ {
		fmt.Fprint(&sb, c)
		if c < 12 {
			sb.WriteByte('\t')
		}
	}
	sb.WriteByte('\n')
	for r, row := range wells.Grid() {
		sb.WriteString(row[0][:1])
		for c := range row {
			sb.WriteByte('\t')
			sb.WriteString(cells[r*len(row)+c])
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// FileKind selects one stored file of a results page.
type FileKind string

const (
	FileArchive    FileKind = "archive"
	FileAIRR       FileKind = "airr"
	FileParameters FileKind = "parameters"
)

// Download is either a URL the client can fetch directly or an open
// stream of the file.
type Download struct {
	Name        string
	URL         string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// ResultsFile opens a stored file of a run page. When the store can issue
// signed URLs the returned Download carries a URL and no Body.
func (s *Service) ResultsFile(ctx context.Context, runID int64, page int, kind FileKind) (*Download, error) {
	res, err := repositories.GetResults(ctx, s.db, runID, page)
	if err != nil {
		return nil, err
	}
	var key string
	switch kind {
	case FileArchive:
		key = res.SeqresFile
	case FileAIRR:
		key = res.AIRRFile
	case FileParameters:
		key = res.ParametersFile
	default:
		return nil, invalid(nil, "unknown results file %q", kind)
	}
	name := key[strings.LastIndexByte(key, '/')+1:]

	url, err := s.store.PresignURL(ctx, key, storage.SignedURLOptions{Method: "GET"})
	if err == nil {
		return &Download{Name: name, URL: url}, nil
	}
	if !errors.Is(err, storage.ErrUnsupported) {
		return nil, fmt.Errorf("sign %s: %w", key, err)
	}
	info, body, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return &Download{Name: name, ContentType: info.ContentType, Size: info.Size, Body: body}, nil
}
