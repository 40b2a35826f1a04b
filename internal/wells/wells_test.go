package wells

import (
	"errors"
	"testing"
)

func TestExtract(t *testing.T) {
	cases := map[string]string{
		"asdfA01": "A1",
		"asdfA2":  "A2",
		"A03":     "A3",
		"A4":      "A4",
		"h12":     "H12",
		"x_B10":   "B10",
		"C09":     "C9",
	}
	for in, want := range cases {
		got, err := Extract(in)
		if err != nil {
			t.Fatalf("Extract(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Extract(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractRejects(t *testing.T) {
	for _, in := range []string{"A1asdf", "A01a", "H13", "A0", "Z01", "Z1", ""} {
		_, err := Extract(in)
		var malformed *MalformedWellNameError
		if !errors.As(err, &malformed) {
			t.Fatalf("Extract(%q): expected MalformedWellNameError, got %v", in, err)
		}
		if malformed.Name != in {
			t.Fatalf("expected name %q in error, got %q", in, malformed.Name)
		}
	}
}

func TestExtractRoundTripsEveryLabel(t *testing.T) {
	for _, l := range Labels {
		padded := l
		if len(l) == 2 {
			padded = l[:1] + "0" + l[1:]
		}
		for _, in := range []string{l, padded, "prefix_" + padded} {
			got, err := Extract(in)
			if err != nil || got != l {
				t.Fatalf("Extract(%q) = %q, %v; want %q", in, got, err, l)
			}
		}
	}
}

func TestIndexAndLabel(t *testing.T) {
	if len(Labels) != PlateSize {
		t.Fatalf("expected %d labels, got %d", PlateSize, len(Labels))
	}
	if i, ok := Index("A1"); !ok || i != 0 {
		t.Fatalf("A1 index = %d, %v", i, ok)
	}
	if i, ok := Index("B1"); !ok || i != 12 {
		t.Fatalf("B1 index = %d, %v", i, ok)
	}
	if l, ok := Label(95); !ok || l != "H12" {
		t.Fatalf("Label(95) = %q, %v", l, ok)
	}
	if _, ok := Label(96); ok {
		t.Fatalf("expected Label(96) to be out of range")
	}
	if _, err := ForLocation(0); err == nil {
		t.Fatalf("expected error for location 0")
	}
	if l, _ := ForLocation(13); l != "B1" {
		t.Fatalf("ForLocation(13) = %q", l)
	}
	if g := Grid(); len(g) != 8 || len(g[0]) != 12 || g[7][11] != "H12" {
		t.Fatalf("unexpected grid %v", g)
	}
}
