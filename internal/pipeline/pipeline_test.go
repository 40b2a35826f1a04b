package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mkoziy/antigen/sequencing/internal/airr"
	"github.com/mkoziy/antigen/sequencing/internal/fasta"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/reconcile"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/search"
	"github.com/mkoziy/antigen/sequencing/internal/sources/imgt"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
	"github.com/mkoziy/antigen/sequencing/internal/storage/memory"
	"github.com/mkoziy/antigen/sequencing/internal/testutil"
	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

// knownCoding is the trimmed nucleotide sequence the fake aligner
// translates to the seeded nanobody.
const knownCoding = "AAACCC"

type fakeAligner struct {
	mu     sync.Mutex
	calls  int
	seen   []fasta.Record
	err    error
	before func()
}

func (f *fakeAligner) Align(_ context.Context, records []fasta.Record) (*imgt.Bundle, error) {
	f.mu.Lock()
	f.calls++
	f.seen = append([]fasta.Record(nil), records...)
	f.mu.Unlock()
	if f.before != nil {
		f.before()
	}
	if f.err != nil {
		return nil, f.err
	}
	rows := make([]airr.Row, 0, len(records))
	for _, r := range records {
		row := testutil.Row(r.ID, "QVQLVESG.GGLVQ", "CARDY")
		if r.Seq == knownCoding {
			row.SequenceAlignmentAA = "QVQLVESGG.GLVQAGGSLRLSCAAS"
			row.CDR3AA = "CAAW"
		}
		rows = append(rows, row)
	}
	return &imgt.Bundle{
		Parameters: []byte("Analysis date\ttoday\n"),
		AIRR:       []byte(testutil.AIRRTable(rows...)),
	}, nil
}

func (f *fakeAligner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// archive builds a zip with one .seq file per label. The first file holds
// the sequence that aligns to the seeded nanobody.
func archive(t *testing.T, labels []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, l := range labels {
		w, err := zw.Create("results/sample_" + l + ".seq")
		require.NoError(t, err)
		content := "GGGATGTTTGGG\n"
		if i == 0 {
			content = "ATG" + knownCoding + "\n"
		}
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	w, err := zw.Create("__MACOSX/results/._sample_A1.seq")
	require.NoError(t, err)
	_, err = w.Write([]byte{0, 1, 2})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fixture struct {
	svc     *Service
	store   *memory.Store
	aligner *fakeAligner
}

func newFixture(t *testing.T, n int, opts ...Option) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.Seed(t, db, testutil.Lab(n))
	store := memory.New()
	aligner := &fakeAligner{}
	return &fixture{svc: New(db, store, aligner, opts...), store: store, aligner: aligner}
}

func (f *fixture) keys(t *testing.T) []string {
	t.Helper()
	infos, err := f.store.List(context.Background(), "")
	require.NoError(t, err)
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.Key)
	}
	return out
}

func TestUploadResultsEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 48)
	labels := wells.Labels[:48]

	out, err := f.svc.UploadResults(ctx, Upload{
		RunID: 1, Page: 0, Filename: "plate1.ZIP", Data: archive(t, labels), AddedBy: "alex",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Offset)
	assert.Equal(t, []int64{1}, out.Nanobodies)
	assert.False(t, out.Replaced)
	assert.Equal(t, 1, out.Results.Version)
	assert.Equal(t, 1, f.aligner.Calls())
	require.Len(t, f.aligner.seen, 48)
	assert.Equal(t, fasta.Record{ID: "sample_A1", Seq: knownCoding}, f.aligner.seen[0])
	assert.Equal(t, "TTTGGG", f.aligner.seen[1].Seq)

	keys := f.keys(t)
	require.Len(t, keys, 3)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "seqruns/1/0/"), k)
	}
	assert.True(t, strings.HasSuffix(out.Results.AIRRFile, "/SequencingResults_1_0_vquestairr.tsv"))
	assert.True(t, strings.HasSuffix(out.Results.ParametersFile, "/SequencingResults_1_0_vquestparams.txt"))
	assert.True(t, strings.HasSuffix(out.Results.SeqresFile, "/plate1.ZIP"))

	rows, err := f.svc.RunResults(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 48)
	var a1 *ResultRecord
	for i := range rows {
		if rows[i].SequenceID == "sample_A1" {
			a1 = &rows[i]
		}
	}
	require.NotNil(t, a1)
	assert.Equal(t, "SmCD1_1_A1_C15", a1.NanobodyAutoname)
	assert.Equal(t, testutil.NanobodySequence, a1.Sequence)
	assert.Equal(t, "Y", a1.Productive)
	assert.Equal(t, "N", a1.StopCodon)

	results, err := repositories.ListResults(ctx, f.svc.db, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Nanobodies, 1)
	assert.Equal(t, "NB1", results[0].Nanobodies[0].Name)
}

func TestUploadResultsDetectsOffset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 48)

	out, err := f.svc.UploadResults(ctx, Upload{
		RunID: 1, Page: 0, Filename: "shifted.zip", Data: archive(t, wells.Labels[4:52]),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Offset)
	assert.Equal(t, 4, out.Results.WellPosOffset)

	rows, err := f.svc.RunResults(ctx, 1)
	require.NoError(t, err)
	names := make(map[string]string, len(rows))
	for _, r := range rows {
		names[r.SequenceID] = r.NanobodyAutoname
	}
	assert.Equal(t, "SmCD1_1_A1_C15", names["sample_A5"])
	assert.Equal(t, "SmCD1_1_D12_C15", names["sample_E4"])
}

func TestUploadResultsReplacesPreviousUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	data := archive(t, wells.Labels[:4])

	first, err := f.svc.UploadResults(ctx, Upload{RunID: 1, Page: 0, Filename: "a.zip", Data: data})
	require.NoError(t, err)
	second, err := f.svc.UploadResults(ctx, Upload{RunID: 1, Page: 0, Filename: "a.zip", Data: data})
	require.NoError(t, err)

	assert.True(t, second.Replaced)
	assert.Equal(t, 2, second.Results.Version)
	assert.Equal(t, first.Results.ID, second.Results.ID)

	keys := f.keys(t)
	require.Len(t, keys, 3)
	for _, k := range keys {
		assert.NotContains(t, []string{first.Results.SeqresFile, first.Results.AIRRFile, first.Results.ParametersFile}, k)
	}
}

func TestUploadResultsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	f.aligner.before = func() {
		_, err := repositories.SaveResults(ctx, f.svc.db, &models.SequencingRunResults{
			SequencingRunID: 1, Seq: 0, SeqresFile: "x.zip", ParametersFile: "x.txt", AIRRFile: "x.tsv",
		}, nil, 0)
		require.NoError(t, err)
	}

	_, err := f.svc.UploadResults(ctx, Upload{RunID: 1, Page: 0, Filename: "a.zip", Data: archive(t, wells.Labels[:4])})
	require.Error(t, err)
	assert.True(t, IsConflict(err), err)
	assert.ErrorIs(t, err, ErrResultsConflict)
	assert.Empty(t, f.keys(t))
}

func TestUploadResultsValidation(t *testing.T) {
	good := wells.Labels[:48]
	missing := append(append([]string(nil), wells.Labels[:47]...), "E1")

	tests := []struct {
		name   string
		upload func(t *testing.T) Upload
		check  func(t *testing.T, err error)
	}{
		{
			name: "not a zip name",
			upload: func(t *testing.T) Upload {
				return Upload{RunID: 1, Filename: "plate.tar", Data: archive(t, good)}
			},
			check: func(t *testing.T, err error) {
				var target *UploadValidationError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "unknown run",
			upload: func(t *testing.T) Upload {
				return Upload{RunID: 99, Filename: "a.zip", Data: archive(t, good)}
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, repositories.ErrNotFound)
				assert.Contains(t, err.Error(), "sequencing run 99 does not exist")
			},
		},
		{
			name: "page not in manifest",
			upload: func(t *testing.T) Upload {
				return Upload{RunID: 1, Page: 3, Filename: "a.zip", Data: archive(t, good)}
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "plate index 3 not found")
			},
		},
		{
			name: "not an archive",
			upload: func(t *testing.T) Upload {
				return Upload{RunID: 1, Filename: "a.zip", Data: []byte("plain text")}
			},
			check: func(t *testing.T, err error) {
				var target *UploadValidationError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name: "well count mismatch",
			upload: func(t *testing.T) Upload {
				return Upload{RunID: 1, Filename: "a.zip", Data: archive(t, good[:47])}
			},
			check: func(t *testing.T, err error) {
				var target *reconcile.WellCountMismatchError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, 48, target.Expected)
				assert.Equal(t, 47, target.Supplied)
			},
		},
		{
			name: "missing well",
			upload: func(t *testing.T) Upload {
				return Upload{RunID: 1, Filename: "a.zip", Data: archive(t, missing)}
			},
			check: func(t *testing.T, err error) {
				var target *reconcile.MissingWellError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, []string{"D12"}, target.Wells)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 48)
			_, err := f.svc.UploadResults(context.Background(), tc.upload(t))
			require.Error(t, err)
			assert.True(t, IsValidation(err), "%v is not a validation error", err)
			tc.check(t, err)
			assert.Zero(t, f.aligner.Calls(), "aligner must not be called")
			assert.Empty(t, f.keys(t))
		})
	}
}

func TestUploadResultsRejectsBadSequenceFile(t *testing.T) {
	f := newFixture(t, 1)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("sample_A1.fasta")
	require.NoError(t, err)
	_, err = io.WriteString(w, ">one\nATGAAA\n>two\nATGCCC\n")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = f.svc.UploadResults(context.Background(), Upload{RunID: 1, Filename: "a.zip", Data: buf.Bytes()})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "sample_A1.fasta")
	assert.Zero(t, f.aligner.Calls())
}

func TestUploadResultsAlignmentFailure(t *testing.T) {
	f := newFixture(t, 4)
	f.aligner.err = &imgt.AlignmentServiceError{Batch: 1, Status: 503}

	_, err := f.svc.UploadResults(context.Background(), Upload{RunID: 1, Filename: "a.zip", Data: archive(t, wells.Labels[:4])})
	require.Error(t, err)
	assert.True(t, IsExternal(err))
	assert.False(t, IsValidation(err))
	assert.Empty(t, f.keys(t))

	_, err = repositories.GetResults(context.Background(), f.svc.db, 1, 0)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRunResultsOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	table := testutil.AIRRTable(
		airr.Row{SequenceID: "s_A1", Productive: "F", StopCodon: "T", SequenceAlignmentAA: "Q*V", CDR3AA: "CAR"},
		testutil.Row("s_A2", "QVK", "CAK"),
		testutil.Row("s_A3", "QVR", "CAR"),
		testutil.Row("s_A4", "QVL", "CAR"),
		testutil.Row("s_A5", "QVM", ""),
	)
	_, err := storage.PutBytes(ctx, f.store, "t/airr.tsv", []byte(table), "")
	require.NoError(t, err)
	_, err = repositories.SaveResults(ctx, f.svc.db, &models.SequencingRunResults{
		SequencingRunID: 1, Seq: 0, SeqresFile: "t/a.zip", ParametersFile: "t/p.txt", AIRRFile: "t/airr.tsv",
	}, nil, 0)
	require.NoError(t, err)

	rows, err := f.svc.RunResults(ctx, 1)
	require.NoError(t, err)
	type view struct {
		ID     string
		Count  int
		New    bool
		Prod   string
		Seq    string
		Stop   string
		Suffix string
	}
	got := make([]view, 0, len(rows))
	for _, r := range rows {
		got = append(got, view{r.SequenceID, r.CDR3AACount, r.NewCDR3, r.Productive, r.Sequence, r.StopCodon, r.NanobodyAutoname[len(r.NanobodyAutoname)-2:]})
	}
	want := []view{
		{"s_A3", 3, true, "Y", "QVR", "N", "15"},
		{"s_A4", 3, false, "Y", "QVL", "N", "15"},
		{"s_A2", 1, true, "Y", "QVK", "N", "15"},
		{"s_A5", 0, true, "Y", "QVM", "N", "15"},
		{"s_A1", 3, true, "N", "QXV", "Y", "15"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("results (-want +got):\n%s", diff)
	}
}

func TestRunResultsUnknownRun(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.RunResults(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSearchCDR3(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	_, err := f.svc.UploadResults(ctx, Upload{RunID: 1, Filename: "a.zip", Data: archive(t, wells.Labels[:4])})
	require.NoError(t, err)

	matches, err := f.svc.SearchCDR3(ctx, "aaw")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sample_A1", matches[0].SequenceID)
	assert.Equal(t, int64(1), matches[0].RunID)
	assert.Equal(t, "SmCD1_1_A1_C15", matches[0].Autoname)

	matches, err = f.svc.SearchCDR3(ctx, "CARDY")
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	_, err = f.svc.SearchCDR3(ctx, "CA R")
	assert.True(t, IsValidation(err))
}

func TestCorpusFASTA(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	_, err := f.svc.UploadResults(ctx, Upload{RunID: 1, Filename: "a.zip", Data: archive(t, wells.Labels[:2])})
	require.NoError(t, err)

	full, err := f.svc.CorpusFASTA(ctx, nil, search.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, "> SmCD1_1_A1_C15\n"+testutil.NanobodySequence+"\n> SmCD1_1_A2_C15\nQVQLVESGGGLVQ\n", string(full))

	run := int64(1)
	cdr3, err := f.svc.CorpusFASTA(ctx, &run, search.ModeCDR3)
	require.NoError(t, err)
	assert.Equal(t, "> CDR3: CAAW\nCAAW\n> CDR3: CARDY\nCARDY\n", string(cdr3))
}

type recordingBlaster struct {
	db, query string
	report    []byte
}

func (b *recordingBlaster) Search(_ context.Context, db, query []byte) ([]byte, error) {
	b.db, b.query = string(db), string(query)
	return b.report, nil
}

func TestBlast(t *testing.T) {
	ctx := context.Background()
	report := map[string]any{
		"BlastOutput2": []any{map[string]any{"report": map[string]any{"results": map[string]any{"search": map[string]any{
			"query_title": "SmCD1_1_A1_C15",
			"query_len":   10,
			"hits": []any{
				map[string]any{
					"description": []any{map[string]any{"title": "SmCD1_1_A2_C15"}},
					"hsps": []any{map[string]any{
						"num": 1, "bit_score": 20.0, "evalue": 0.001, "identity": 9, "align_len": 10,
						"qseq": "QVQ", "hseq": "QVQ", "midline": "QVQ",
					}},
				},
				map[string]any{
					"description": []any{map[string]any{"title": "SmCD1_1_A1_C15"}},
					"hsps":        []any{map[string]any{"num": 1, "evalue": 0.0, "identity": 10, "align_len": 10}},
				},
			},
		}}}}},
	}
	raw, err := json.Marshal(report)
	require.NoError(t, err)
	b := &recordingBlaster{report: raw}

	f := newFixture(t, 2, WithBlaster(b))
	_, err = f.svc.UploadResults(ctx, Upload{RunID: 1, Filename: "a.zip", Data: archive(t, wells.Labels[:2])})
	require.NoError(t, err)

	hits, err := f.svc.Blast(ctx, 1, search.ModeFull)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "SmCD1_1_A2_C15", hits[0].SubjectTitle)
	assert.Equal(t, "CAAW", hits[0].QueryCDR3)
	assert.Equal(t, 90.0, hits[0].IdentPerc)
	assert.Contains(t, b.db, "> SmCD1_1_A2_C15\n")
	assert.Contains(t, b.query, "> SmCD1_1_A1_C15\n")

	_, err = f.svc.Blast(ctx, 1, search.ModeCDR3)
	require.NoError(t, err)
	assert.Contains(t, b.db, "> SmCD1_1_A1_C15[CDR3]\nCAAW\n")
	assert.Contains(t, b.query, "> CDR3: CAAW\n")

	_, err = f.svc.Blast(ctx, 1, search.ModeCDR3Unagg)
	assert.True(t, IsValidation(err))
}

func TestBlastWithoutRunner(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.Blast(context.Background(), 1, search.ModeFull)
	assert.True(t, errors.Is(err, ErrSearchUnavailable))
	assert.True(t, IsExternal(err))
}

func TestPlateLayoutTSV(t *testing.T) {
	f := newFixture(t, 2)
	got, err := f.svc.PlateLayoutTSV(context.Background(), 1, 0)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "\t1\t2\t3\t4\t5\t6\t7\t8\t9\t10\t11\t12", lines[0])
	assert.Equal(t, "A\t1:A1 [SmCD1] *\t1:A2 [SmCD1] *"+strings.Repeat("\t", 10), lines[1])
	assert.Equal(t, "H"+strings.Repeat("\t", 12), lines[8])

	_, err = f.svc.PlateLayoutTSV(context.Background(), 1, 1)
	assert.True(t, IsValidation(err))
}

func TestResultsFileStreamsWithoutSignedURLs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	data := archive(t, wells.Labels[:2])
	_, err := f.svc.UploadResults(ctx, Upload{RunID: 1, Filename: "a.zip", Data: data})
	require.NoError(t, err)

	dl, err := f.svc.ResultsFile(ctx, 1, 0, FileArchive)
	require.NoError(t, err)
	require.NotNil(t, dl.Body)
	defer dl.Body.Close()
	assert.Empty(t, dl.URL)
	assert.Equal(t, "a.zip", dl.Name)
	assert.Equal(t, "application/zip", dl.ContentType)
	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = f.svc.ResultsFile(ctx, 1, 1, FileAIRR)
	assert.True(t, IsNotFound(err))
}

func TestCreateSequencingRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	run, err := f.svc.CreateSequencingRun(ctx, NewRun{
		Wells:           json.RawMessage(`[{"plate":0,"location":2,"elisa_well":{"plate":1,"location":5}},{"plate":0,"location":1,"elisa_well":{"plate":1,"location":4}}]`),
		PlateThresholds: json.RawMessage(`[{"elisa_plate":1,"optical_density_threshold":0.4}]`),
		AddedBy:         "sam",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, run.ExpectedLabels(0))

	stored, err := f.svc.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Wells, stored.Wells)

	_, err = f.svc.CreateSequencingRun(ctx, NewRun{
		Wells: json.RawMessage(`[{"plate":0,"location":1,"elisa_well":{"plate":7,"location":1}}]`),
	})
	assert.True(t, IsValidation(err))

	_, err = f.svc.CreateSequencingRun(ctx, NewRun{
		Wells: json.RawMessage(`[{"plate":1,"location":1,"elisa_well":{"plate":1,"location":1}}]`),
	})
	assert.True(t, IsValidation(err))
}
