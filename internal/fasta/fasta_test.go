package fasta

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormat(t *testing.T) {
	got := Format([]Record{{ID: "s1", Seq: "ACGT"}, {ID: "s2"}, {ID: "s3", Seq: "TT"}})
	want := "> s1\nACGT\n> s2\n> s3\nTT\n"
	if got != want {
		t.Fatalf("unexpected FASTA:\n%s", got)
	}
}

func TestBatchesRoundTrip(t *testing.T) {
	var records []Record
	for i := 0; i < 123; i++ {
		seq := strings.Repeat("ACGT", i%5)
		records = append(records, Record{ID: fmt.Sprintf("sample_%03d", i), Seq: seq})
	}

	for _, size := range []int{0, 1, 50, 122, 123, 500} {
		batches := Batches(records, size)
		var recovered []Record
		for _, b := range batches {
			if size > 0 && len(b) > size {
				t.Fatalf("size %d: batch of %d exceeds maximum", size, len(b))
			}
			parsed, err := Parse(strings.NewReader(Format(b)))
			if err != nil {
				t.Fatalf("size %d: parse: %v", size, err)
			}
			recovered = append(recovered, parsed...)
		}
		if diff := cmp.Diff(records, recovered); diff != "" {
			t.Fatalf("size %d: round trip mismatch (-want +got):\n%s", size, diff)
		}
	}
}

func TestBatchesCounts(t *testing.T) {
	records := make([]Record, 120)
	if n := len(Batches(records, 50)); n != 3 {
		t.Fatalf("expected 3 batches, got %d", n)
	}
	if n := len(Batches(records, 0)); n != 1 {
		t.Fatalf("expected 1 unbounded batch, got %d", n)
	}
	if Batches(nil, 50) != nil {
		t.Fatalf("expected no batches for empty input")
	}
}

func TestParseMultiline(t *testing.T) {
	got, err := Parse(strings.NewReader(">a desc\nAC\nGT\n\n>b\nQ\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []Record{{ID: "a desc", Seq: "ACGT"}, {ID: "b", Seq: "Q"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if _, err := Parse(strings.NewReader("ACGT\n")); err == nil {
		t.Fatalf("expected error for headerless data")
	}
}
