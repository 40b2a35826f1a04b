// Package search runs CDR3 substring and BLAST similarity searches over the
// stored sequencing corpus.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mkoziy/antigen/sequencing/internal/airr"
	"github.com/mkoziy/antigen/sequencing/internal/corpus"
	"github.com/mkoziy/antigen/sequencing/internal/fasta"
)

// Mode selects which sequences a FASTA export contains and how they are
// named.
type Mode string

const (
	// ModeFull names full alignment sequences by autoname.
	ModeFull Mode = "full"
	// ModeCDR3 aggregates distinct CDR3s, each named "CDR3: {cdr3}".
	ModeCDR3 Mode = "cdr3"
	// ModeCDR3Unagg names every CDR3 "{autoname}[CDR3]".
	ModeCDR3Unagg Mode = "cdr3_unagg"
)

// cdr3TitlePrefix precedes the CDR3 in aggregated titles.
const cdr3TitlePrefix = "CDR3: "

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFull, ModeCDR3, ModeCDR3Unagg:
		return m, nil
	case "":
		return ModeFull, nil
	}
	return "", fmt.Errorf("unknown query type %q", s)
}

// Columns returns the AIRR columns a mode reads.
func (m Mode) Columns() []string {
	if m == ModeFull {
		return []string{airr.ColSequenceID, airr.ColSequenceAlignmentAA}
	}
	return []string{airr.ColSequenceID, airr.ColCDR3AA}
}

// ConflictingSequenceError reports one name mapped to two sequences.
type ConflictingSequenceError struct {
	Name   string
	First  string
	Second string
}

func (e *ConflictingSequenceError) Error() string {
	return fmt.Sprintf("Different sequences with same name! %s", e.Name)
}

// FASTA converts corpus records into FASTA records for mode. Rows without
// the needed sequence are skipped. A repeated name must carry the same
// sequence each time.
func FASTA(records []corpus.Record, mode Mode) ([]fasta.Record, error) {
	if mode == ModeCDR3 {
		seen := make(map[string]bool)
		var cdr3s []string
		for _, r := range records {
			if r.CDR3AA == "" || seen[r.CDR3AA] {
				continue
			}
			seen[r.CDR3AA] = true
			cdr3s = append(cdr3s, r.CDR3AA)
		}
		sort.Strings(cdr3s)
		out := make([]fasta.Record, 0, len(cdr3s))
		for _, c := range cdr3s {
			out = append(out, fasta.Record{ID: cdr3TitlePrefix + c, Seq: c})
		}
		return out, nil
	}

	byName := make(map[string]string)
	var out []fasta.Record
	for _, r := range records {
		var name, seq string
		switch mode {
		case ModeCDR3Unagg:
			if r.CDR3AA == "" {
				continue
			}
			name, seq = r.Autoname+"[CDR3]", strings.ReplaceAll(r.CDR3AA, ".", "")
		default:
			if r.SequenceAlignmentAA == "" {
				continue
			}
			name, seq = r.Autoname, strings.ReplaceAll(r.SequenceAlignmentAA, ".", "")
		}
		if prev, ok := byName[name]; ok {
			if prev != seq {
				return nil, &ConflictingSequenceError{Name: name, First: prev, Second: seq}
			}
			continue
		}
		byName[name] = seq
		out = append(out, fasta.Record{ID: name, Seq: seq})
	}
	return out, nil
}
