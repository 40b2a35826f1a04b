// Package airr parses the tab-separated AIRR rearrangement tables returned
// by the alignment service.
package airr

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Column names retained from the AIRR schema.
const (
	ColSequenceID          = "sequence_id"
	ColProductive          = "productive"
	ColStopCodon           = "stop_codon"
	ColSequenceAlignmentAA = "sequence_alignment_aa"
	ColFWR1AA              = "fwr1_aa"
	ColCDR1AA              = "cdr1_aa"
	ColFWR2AA              = "fwr2_aa"
	ColCDR2AA              = "cdr2_aa"
	ColFWR3AA              = "fwr3_aa"
	ColCDR3AA              = "cdr3_aa"
)

// Columns is the allow-list of columns read from a table, in output order.
var Columns = []string{
	ColSequenceID,
	ColProductive,
	ColStopCodon,
	ColSequenceAlignmentAA,
	ColFWR1AA,
	ColCDR1AA,
	ColFWR2AA,
	ColCDR2AA,
	ColFWR3AA,
	ColCDR3AA,
}

// Row holds the allow-listed fields of one rearrangement. Fields that were
// not requested or are blank in the table are empty.
type Row struct {
	SequenceID          string `json:"sequence_id"`
	Productive          string `json:"productive"`
	StopCodon           string `json:"stop_codon"`
	SequenceAlignmentAA string `json:"sequence_alignment_aa"`
	FWR1AA              string `json:"fwr1_aa"`
	CDR1AA              string `json:"cdr1_aa"`
	FWR2AA              string `json:"fwr2_aa"`
	CDR2AA              string `json:"cdr2_aa"`
	FWR3AA              string `json:"fwr3_aa"`
	CDR3AA              string `json:"cdr3_aa"`
}

// Get returns the value of an allow-listed column.
func (r *Row) Get(column string) string {
	if p := r.field(column); p != nil {
		return *p
	}
	return ""
}

func (r *Row) field(column string) *string {
	switch column {
	case ColSequenceID:
		return &r.SequenceID
	case ColProductive:
		return &r.Productive
	case ColStopCodon:
		return &r.StopCodon
	case ColSequenceAlignmentAA:
		return &r.SequenceAlignmentAA
	case ColFWR1AA:
		return &r.FWR1AA
	case ColCDR1AA:
		return &r.CDR1AA
	case ColFWR2AA:
		return &r.FWR2AA
	case ColCDR2AA:
		return &r.CDR2AA
	case ColFWR3AA:
		return &r.FWR3AA
	case ColCDR3AA:
		return &r.CDR3AA
	}
	return nil
}

// ProteinSequence returns the alignment amino acids with gap dots removed
// and stop codons written as X.
func (r *Row) ProteinSequence() string {
	return CleanAA(r.SequenceAlignmentAA)
}

// CleanAA removes IMGT gap characters and maps stop codons to X.
func CleanAA(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), "*", "X")
}

// Well returns the part of the sequence id after its last underscore,
// which carries the supplied well name.
func (r *Row) Well() string {
	if i := strings.LastIndexByte(r.SequenceID, '_'); i >= 0 {
		return r.SequenceID[i+1:]
	}
	return r.SequenceID
}

// MissingColumnError reports a requested column absent from the header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("AIRR table has no %q column", e.Column)
}

// MalformedRowError reports a row that cannot be aligned with the header.
type MalformedRowError struct {
	Line   int
	Fields int
	Header int
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("AIRR table line %d has %d fields, header has %d", e.Line, e.Fields, e.Header)
}

// ErrEmptyTable is returned for input without a header line.
var ErrEmptyTable = errors.New("AIRR table is empty")

// Parse reads an AIRR table. Every line is stripped of surrounding
// whitespace before parsing since the upstream export pads lines. When
// columns is empty the full allow-list is read.
func Parse(r io.Reader, columns ...string) ([]Row, error) {
	if len(columns) == 0 {
		columns = Columns
	}
	empty := Row{}
	for _, c := range columns {
		if empty.field(c) == nil {
			return nil, fmt.Errorf("column %q is not an AIRR column this package reads", c)
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lines := bytes.Split(raw, []byte("\n"))
	cleaned := make([][]byte, 0, len(lines))
	for _, l := range lines {
		l = bytes.TrimSpace(l)
		if len(l) == 0 {
			continue
		}
		cleaned = append(cleaned, l)
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyTable
	}

	cr := csv.NewReader(bytes.NewReader(bytes.Join(cleaned, []byte("\n"))))
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read AIRR header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		p, ok := pos[c]
		if !ok {
			return nil, &MissingColumnError{Column: c}
		}
		idx[i] = p
	}

	var out []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read AIRR line %d: %w", line, err)
		}
		if len(rec) > len(header) {
			return nil, &MalformedRowError{Line: line, Fields: len(rec), Header: len(header)}
		}
		var row Row
		for i, c := range columns {
			if idx[i] < len(rec) {
				*row.field(c) = strings.TrimSpace(rec[idx[i]])
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// Merge concatenates AIRR tables that share a header, keeping the header
// of the first table only.
func Merge(tables ...[]byte) ([]byte, error) {
	var (
		buf    bytes.Buffer
		header string
	)
	for i, t := range tables {
		text := strings.TrimRight(string(t), "\r\n")
		if text == "" {
			continue
		}
		first, rest, _ := strings.Cut(text, "\n")
		first = strings.TrimRight(first, "\r")
		if header == "" {
			header = first
			buf.WriteString(first)
			buf.WriteByte('\n')
		} else if strings.TrimSpace(first) != strings.TrimSpace(header) {
			return nil, fmt.Errorf("AIRR table %d has a different header", i+1)
		}
		if rest != "" {
			buf.WriteString(rest)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}
