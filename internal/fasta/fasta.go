// Package fasta reads and writes the FASTA text used to exchange
// sequences with the alignment service and the similarity search tool.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Record is one named sequence.
type Record struct {
	ID  string
	Seq string
}

// Write emits records as "> id" header lines followed by the sequence on a
// single line. Records with an empty sequence get no body line.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "> %s\n", r.ID); err != nil {
			return err
		}
		if r.Seq == "" {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s\n", r.Seq); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Format returns the FASTA text for records.
func Format(records []Record) string {
	var sb strings.Builder
	_ = Write(&sb, records)
	return sb.String()
}

// Parse reads every record from r. Header text is trimmed; multi-line
// bodies are concatenated.
func Parse(r io.Reader) ([]Record, error) {
	var (
		out     []Record
		current *Record
		body    strings.Builder
	)
	flush := func() {
		if current != nil {
			current.Seq = body.String()
			out = append(out, *current)
		}
		body.Reset()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			current = &Record{ID: strings.TrimSpace(line[1:])}
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("sequence data before first header: %q", line)
		}
		body.WriteString(line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// Batches splits records into consecutive groups of at most size entries.
// A size of zero or less yields a single unbounded batch.
func Batches(records []Record, size int) [][]Record {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 || size >= len(records) {
		return [][]Record{records}
	}
	out := make([][]Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
