package reconcile

import (
	"fmt"
	"strings"
)

// WellCountMismatchError reports an upload with the wrong number of wells.
type WellCountMismatchError struct {
	Expected int
	Supplied int
}

func (e *WellCountMismatchError) Error() string {
	return fmt.Sprintf("upload contains data for %d wells, expected %d", e.Supplied, e.Expected)
}

// UnparsableWellNameError reports a supplied sequence id without a well label.
type UnparsableWellNameError struct {
	Name string
	Err  error
}

func (e *UnparsableWellNameError) Error() string {
	return fmt.Sprintf("unable to extract well from %q: %v", e.Name, e.Err)
}

func (e *UnparsableWellNameError) Unwrap() error { return e.Err }

// DuplicateWellError lists wells supplied more than once.
type DuplicateWellError struct {
	Wells []string
}

func (e *DuplicateWellError) Error() string {
	return "duplicate well(s) in upload: " + strings.Join(e.Wells, ", ")
}

// MissingWellError lists expected wells absent from the upload. Wells are
// the shifted positions that were looked up. Unshifted holds the expected
// labels as written in the manifest that the upload does not contain.
type MissingWellError struct {
	Wells     []string
	Unshifted []string
	Offset    int
}

func (e *MissingWellError) Error() string {
	msg := fmt.Sprintf("expected well(s) %s were not found in upload (offset %d)", strings.Join(e.Wells, ", "), e.Offset)
	if e.Offset > 0 && len(e.Unshifted) > 0 {
		msg += "; upload has no data for expected well(s) " + strings.Join(e.Unshifted, ", ")
	}
	return msg
}

// UnexpectedWellError lists uploaded wells the manifest does not account for.
type UnexpectedWellError struct {
	Wells  []string
	Offset int
}

func (e *UnexpectedWellError) Error() string {
	return fmt.Sprintf("well(s) %s in upload were not expected (offset %d)", strings.Join(e.Wells, ", "), e.Offset)
}

// ManifestError reports an expected well list that violates the manifest
// invariants. It indicates corrupt stored data rather than bad user input.
type ManifestError struct {
	Detail string
}

func (e *ManifestError) Error() string {
	return "invalid expected well manifest: " + e.Detail
}
