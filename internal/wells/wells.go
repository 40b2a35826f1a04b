// Package wells maps free-form well names onto the 96-well plate grid.
package wells

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// PlateSize is the number of wells on a plate.
	PlateSize = 96
	rows      = "ABCDEFGH"
	columns   = 12
)

// Labels is the canonical row-major ordering of well labels, A1 through H12.
var Labels = buildLabels()

var labelIndex = func() map[string]int {
	idx := make(map[string]int, PlateSize)
	for i, l := range Labels {
		idx[l] = i
	}
	return idx
}()

var trailingWell = regexp.MustCompile(`([A-H])(1[0-2]|0?[1-9])$`)

func buildLabels() []string {
	out := make([]string, 0, PlateSize)
	for _, r := range rows {
		for c := 1; c <= columns; c++ {
			out = append(out, string(r)+strconv.Itoa(c))
		}
	}
	return out
}

// MalformedWellNameError reports a name that does not end in a well label.
type MalformedWellNameError struct {
	Name string
}

func (e *MalformedWellNameError) Error() string {
	return fmt.Sprintf("could not extract well name from %q", e.Name)
}

// Extract returns the canonical label encoded at the end of name.
// "asdfA01" and "a1" both yield "A1"; "H13" and "A01a" are rejected.
func Extract(name string) (string, error) {
	m := trailingWell.FindStringSubmatch(strings.ToUpper(name))
	if m == nil {
		return "", &MalformedWellNameError{Name: name}
	}
	return m[1] + strings.TrimPrefix(m[2], "0"), nil
}

// Index returns the 0-based position of a canonical label.
func Index(label string) (int, bool) {
	i, ok := labelIndex[label]
	return i, ok
}

// Label returns the label at a 0-based index.
func Label(index int) (string, bool) {
	if index < 0 || index >= PlateSize {
		return "", false
	}
	return Labels[index], true
}

// ForLocation converts a 1-based plate location to its label.
func ForLocation(location int) (string, error) {
	l, ok := Label(location - 1)
	if !ok {
		return "", fmt.Errorf("plate location %d out of range 1-%d", location, PlateSize)
	}
	return l, nil
}

// Grid returns the labels as 8 rows of 12.
func Grid() [][]string {
	out := make([][]string, 0, len(rows))
	for r := 0; r < len(rows); r++ {
		out = append(out, Labels[r*columns:(r+1)*columns])
	}
	return out
}
