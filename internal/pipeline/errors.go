package pipeline

import (
	"errors"
	"fmt"

	"github.com/mkoziy/antigen/sequencing/internal/blast"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/reconcile"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/search"
	"github.com/mkoziy/antigen/sequencing/internal/sequences"
	"github.com/mkoziy/antigen/sequencing/internal/sources/imgt"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// ErrResultsConflict is returned when another upload created or replaced
// the results of the same run page first.
var ErrResultsConflict = errors.New("results for this sequencing run page were changed by another upload, reload and retry")

// ErrSearchUnavailable is returned by similarity searches when no BLAST
// runner is configured.
var ErrSearchUnavailable = errors.New("similarity search is not configured")

// UploadValidationError rejects user input before any state is changed.
type UploadValidationError struct {
	Msg string
	Err error
}

func (e *UploadValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *UploadValidationError) Unwrap() error { return e.Err }

func invalid(err error, format string, args ...any) error {
	return &UploadValidationError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports errors caused by bad input: rejected uploads,
// malformed sequence files, well reconciliation failures and invalid
// manifests.
func IsValidation(err error) bool {
	var (
		upload     *UploadValidationError
		count      *reconcile.WellCountMismatchError
		unparsable *reconcile.UnparsableWellNameError
		dup        *reconcile.DuplicateWellError
		missing    *reconcile.MissingWellError
		unexpected *reconcile.UnexpectedWellError
		file       *sequences.FileError
		multi      *sequences.MultiSequenceFileError
		malformed  *sequences.MalformedSequenceError
		nucleotide *sequences.InvalidNucleotideError
		wellName   *wells.MalformedWellNameError
		manifest   *models.ValidationError
	)
	return errors.As(err, &upload) ||
		errors.As(err, &count) ||
		errors.As(err, &unparsable) ||
		errors.As(err, &dup) ||
		errors.As(err, &missing) ||
		errors.As(err, &unexpected) ||
		errors.As(err, &file) ||
		errors.As(err, &multi) ||
		errors.As(err, &malformed) ||
		errors.As(err, &nucleotide) ||
		errors.As(err, &wellName) ||
		errors.As(err, &manifest)
}

// IsExternal reports failures of the alignment service or the similarity
// search tool.
func IsExternal(err error) bool {
	var (
		align *imgt.AlignmentServiceError
		tool  *blast.ToolError
	)
	return errors.As(err, &align) || errors.As(err, &tool) || errors.Is(err, ErrSearchUnavailable)
}

// IsConflict reports a lost race between uploads of the same run page.
func IsConflict(err error) bool {
	return errors.Is(err, ErrResultsConflict)
}

// IsIntegrity reports stored data that contradicts itself.
func IsIntegrity(err error) bool {
	var (
		seq      *search.ConflictingSequenceError
		manifest *reconcile.ManifestError
	)
	return errors.As(err, &seq) || errors.As(err, &manifest)
}

// IsNotFound reports a missing run, results page or stored file.
func IsNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound) || errors.Is(err, storage.ErrNotFound)
}
