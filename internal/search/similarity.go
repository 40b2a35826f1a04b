package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/mkoziy/antigen/sequencing/internal/blast"
	"github.com/mkoziy/antigen/sequencing/internal/corpus"
	"github.com/mkoziy/antigen/sequencing/internal/fasta"
)

// Default hit thresholds.
const (
	DefaultMinAlignPerc = 90
	DefaultMaxEvalue    = 0.05
)

// Thresholds filter BLAST hits.
type Thresholds struct {
	MinAlignPerc float64 `yaml:"min_align_perc"`
	MaxEvalue    float64 `yaml:"max_evalue"`
}

// DefaultThresholds returns the standard cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{MinAlignPerc: DefaultMinAlignPerc, MaxEvalue: DefaultMaxEvalue}
}

// WithDefaults replaces unset thresholds.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MinAlignPerc <= 0 {
		t.MinAlignPerc = d.MinAlignPerc
	}
	if t.MaxEvalue <= 0 {
		t.MaxEvalue = d.MaxEvalue
	}
	return t
}

// Hit is one retained query/subject alignment.
type Hit struct {
	QueryTitle   string  `json:"query_title"`
	QueryCDR3    string  `json:"query_cdr3"`
	SubjectTitle string  `json:"subject_title"`
	SubmatchNo   int     `json:"submatch_no"`
	QuerySeq     string  `json:"query_seq"`
	SubjectSeq   string  `json:"subject_seq"`
	Midline      string  `json:"midline"`
	BitScore     float64 `json:"bit_score"`
	Evalue       float64 `json:"e_value"`
	AlignLen     int     `json:"align_len"`
	AlignPerc    float64 `json:"align_perc"`
	IdentPerc    float64 `json:"ident_perc"`
}

// Filter flattens BLAST searches into hits, dropping self hits, hits
// covering less than MinAlignPerc of the query and hits above MaxEvalue.
// In cdr3 mode the query CDR3 is read from the aggregated title, otherwise
// from cdr3ByTitle. Hits are sorted by query CDR3, then by descending
// alignment and identity percentages.
func Filter(searches []blast.Search, mode Mode, cdr3ByTitle map[string]string, th Thresholds) []Hit {
	th = th.WithDefaults()
	var out []Hit
	for _, s := range searches {
		query := strings.TrimSpace(s.QueryTitle)
		var queryCDR3 string
		if mode == ModeCDR3 {
			queryCDR3 = strings.TrimPrefix(query, cdr3TitlePrefix)
		} else {
			queryCDR3 = cdr3ByTitle[s.QueryTitle]
		}
		for _, h := range s.Hits {
			subject := strings.TrimSpace(h.Title())
			if subject == query {
				continue
			}
			for _, hsp := range h.HSPs {
				if s.QueryLen <= 0 || hsp.AlignLen <= 0 {
					continue
				}
				alignPerc := round2(float64(hsp.AlignLen) / float64(s.QueryLen) * 100)
				if alignPerc < th.MinAlignPerc {
					continue
				}
				if hsp.Evalue > th.MaxEvalue {
					continue
				}
				out = append(out, Hit{
					QueryTitle:   query,
					QueryCDR3:    queryCDR3,
					SubjectTitle: subject,
					SubmatchNo:   hsp.Num,
					QuerySeq:     hsp.QSeq,
					SubjectSeq:   hsp.HSeq,
					Midline:      hsp.Midline,
					BitScore:     hsp.BitScore,
					Evalue:       hsp.Evalue,
					AlignLen:     hsp.AlignLen,
					AlignPerc:    alignPerc,
					IdentPerc:    round2(float64(hsp.Identity) / float64(hsp.AlignLen) * 100),
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.QueryCDR3 != b.QueryCDR3 {
			return a.QueryCDR3 < b.QueryCDR3
		}
		if a.AlignPerc != b.AlignPerc {
			return a.AlignPerc > b.AlignPerc
		}
		return a.IdentPerc > b.IdentPerc
	})
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Blaster runs a protein similarity search over FASTA inputs and returns
// the JSON report. *blast.Runner implements it.
type Blaster interface {
	Search(ctx context.Context, db, query []byte) ([]byte, error)
}

// Similarity searches query records against the database records. In cdr3
// mode the query is aggregated by CDR3 while the database keeps one entry
// per autoname so subjects stay identifiable. It returns nil when either
// side has no sequences.
func Similarity(ctx context.Context, b Blaster, query, db []corpus.Record, mode Mode, th Thresholds) ([]Hit, error) {
	queryRecs, err := FASTA(query, mode)
	if err != nil {
		return nil, err
	}
	if len(queryRecs) == 0 {
		return nil, nil
	}
	dbMode := mode
	if mode == ModeCDR3 {
		dbMode = ModeCDR3Unagg
	}
	dbRecs, err := FASTA(db, dbMode)
	if err != nil {
		return nil, err
	}
	if len(dbRecs) == 0 {
		return nil, nil
	}

	report, err := b.Search(ctx, []byte(fasta.Format(dbRecs)), []byte(fasta.Format(queryRecs)))
	if err != nil {
		return nil, err
	}
	searches, err := blast.ParseReport(report)
	if err != nil {
		return nil, err
	}

	cdr3ByTitle := make(map[string]string)
	if mode != ModeCDR3 {
		for _, r := range query {
			if r.CDR3AA != "" {
				cdr3ByTitle[r.Autoname] = r.CDR3AA
			}
		}
	}
	return Filter(searches, mode, cdr3ByTitle, th), nil
}
