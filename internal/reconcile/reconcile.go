// Package reconcile matches the wells found in a results upload against
// the wells a sequencing run page expects.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// Result describes a successful reconciliation.
type Result struct {
	// Offset is how many plate positions the upload is shifted forward.
	Offset int
	// Expected holds the canonical expected labels in plate order.
	Expected []string
	// Supplied maps each supplied name to its canonical label.
	Supplied map[string]string
}

// CheckCount fails when the upload has a different number of wells than the
// page expects. Callers run it before any alignment work.
func CheckCount(expected, supplied int) error {
	if expected != supplied {
		return &WellCountMismatchError{Expected: expected, Supplied: supplied}
	}
	return nil
}

// Reconcile canonicalises both lists, detects a uniform forward offset of
// the supplied wells and verifies that the shifted expected set equals the
// supplied set.
func Reconcile(expected, supplied []string) (*Result, error) {
	expIdx := make([]int, 0, len(expected))
	expSeen := make(map[int]bool, len(expected))
	var expDups []string
	for _, name := range expected {
		label, err := wells.Extract(name)
		if err != nil {
			return nil, &ManifestError{Detail: err.Error()}
		}
		i, _ := wells.Index(label)
		if expSeen[i] {
			expDups = append(expDups, label)
			continue
		}
		expSeen[i] = true
		expIdx = append(expIdx, i)
	}
	if len(expDups) > 0 {
		return nil, &ManifestError{Detail: fmt.Sprintf("duplicate expected well(s) %v", expDups)}
	}

	supIdx := make([]int, 0, len(supplied))
	supSeen := make(map[int]int, len(supplied))
	mapping := make(map[string]string, len(supplied))
	for _, name := range supplied {
		label, err := wells.Extract(name)
		if err != nil {
			return nil, &UnparsableWellNameError{Name: name, Err: err}
		}
		mapping[name] = label
		i, _ := wells.Index(label)
		supSeen[i]++
		if supSeen[i] == 1 {
			supIdx = append(supIdx, i)
		}
	}
	var dups []int
	for i, n := range supSeen {
		if n > 1 {
			dups = append(dups, i)
		}
	}
	if len(dups) > 0 {
		return nil, &DuplicateWellError{Wells: labelsOf(dups)}
	}

	sort.Ints(expIdx)
	sort.Ints(supIdx)

	offset := 0
	if len(expIdx) > 0 && len(supIdx) > 0 {
		if d := supIdx[0] - expIdx[0]; d > 0 {
			offset = d
		}
	}

	shifted := make(map[int]bool, len(expIdx))
	var missing []string
	for _, i := range expIdx {
		j := i + offset
		shifted[j] = true
		if supSeen[j] == 0 {
			missing = append(missing, shiftedLabel(i, offset))
		}
	}
	if len(missing) > 0 {
		var absent []int
		for _, i := range expIdx {
			if supSeen[i] == 0 {
				absent = append(absent, i)
			}
		}
		return nil, &MissingWellError{Wells: missing, Unshifted: labelsOf(absent), Offset: offset}
	}

	var unexpected []int
	for _, i := range supIdx {
		if !shifted[i] {
			unexpected = append(unexpected, i)
		}
	}
	if len(unexpected) > 0 {
		return nil, &UnexpectedWellError{Wells: labelsOf(unexpected), Offset: offset}
	}

	return &Result{Offset: offset, Expected: labelsOf(expIdx), Supplied: mapping}, nil
}

// shiftedLabel names the position an expected well moves to. Positions past
// the end of the plate are written relative to the original well.
func shiftedLabel(index, offset int) string {
	if l, ok := wells.Label(index + offset); ok {
		return l
	}
	return fmt.Sprintf("%s(+%d)", wells.Labels[index], offset)
}

func labelsOf(idx []int) []string {
	sorted := append([]int(nil), idx...)
	sort.Ints(sorted)
	out := make([]string, len(sorted))
	for k, i := range sorted {
		out[k] = wells.Labels[i]
	}
	return out
}
