package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// SequencingRun is one submission of ELISA hits to the sequencing vendor.
type SequencingRun struct {
	bun.BaseModel `bun:"table:sequencing_runs,alias:sr"`

	ID              int64           `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	Wells           WellEntries     `bun:"wells,type:json,notnull" json:"wells" yaml:"wells"`
	PlateThresholds PlateThresholds `bun:"plate_thresholds,type:json,notnull" json:"plate_thresholds" yaml:"plate_thresholds"`
	Notes           *string         `bun:"notes" json:"notes,omitempty" yaml:"notes"`
	SentDate        *time.Time      `bun:"sent_date" json:"sent_date,omitempty" yaml:"sent_date"`
	AddedBy         string          `bun:"added_by,notnull,default:''" json:"added_by" yaml:"added_by"`
	AddedDate       time.Time       `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`

	Results []*SequencingRunResults `bun:"rel:has-many,join:id=sequencing_run_id" json:"results,omitempty" yaml:"-"`
}

// Validate checks the manifest and thresholds.
func (r *SequencingRun) Validate() error {
	if err := r.Wells.Validate(); err != nil {
		return err
	}
	return r.PlateThresholds.Validate()
}

// PageWells returns the manifest entries of one page in location order.
func (r *SequencingRun) PageWells(page int) []WellEntry {
	var out []WellEntry
	for _, w := range r.Wells {
		if w.Plate == page {
			out = append(out, w)
		}
	}
	WellEntries(out).Sort()
	return out
}

// ExpectedLabels returns the well labels a page expects, in plate order.
func (r *SequencingRun) ExpectedLabels(page int) []string {
	entries := r.PageWells(page)
	out := make([]string, 0, len(entries))
	for _, w := range entries {
		if l, ok := wells.Label(w.Location - 1); ok {
			out = append(out, l)
		}
	}
	return out
}

// ElisaPlateIDs lists referenced ELISA plates in first-seen order.
func (r *SequencingRun) ElisaPlateIDs() []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, w := range r.Wells {
		if !seen[w.ElisaWell.Plate] {
			seen[w.ElisaWell.Plate] = true
			out = append(out, w.ElisaWell.Plate)
		}
	}
	return out
}

// ElisaWellAt returns the ELISA well sent to a sequencing position.
func (r *SequencingRun) ElisaWellAt(page, location int) (ElisaWellRef, bool) {
	for _, w := range r.Wells {
		if w.Plate == page && w.Location == location {
			return w.ElisaWell, true
		}
	}
	return ElisaWellRef{}, false
}

// SequencingRunResults is the stored outcome of one uploaded page.
type SequencingRunResults struct {
	bun.BaseModel `bun:"table:sequencing_run_results,alias:srr"`

	ID              int64 `bun:"id,pk,autoincrement" json:"id"`
	SequencingRunID int64 `bun:"sequencing_run_id,notnull,unique:sequencing_run_results_run_page" json:"sequencing_run_id"`
	Seq             int   `bun:"seq,notnull,unique:sequencing_run_results_run_page" json:"seq"`
	// Storage keys of the uploaded archive and the derived V-QUEST files.
	SeqresFile     string    `bun:"seqres_file,notnull" json:"seqres_file"`
	ParametersFile string    `bun:"parameters_file,notnull" json:"parameters_file"`
	AIRRFile       string    `bun:"airr_file,notnull" json:"airr_file"`
	WellPosOffset  int       `bun:"well_pos_offset,notnull" json:"well_pos_offset"`
	Version        int       `bun:"version,notnull" json:"version"`
	AddedBy        string    `bun:"added_by,notnull,default:''" json:"added_by"`
	AddedDate      time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date"`

	SequencingRun *SequencingRun `bun:"rel:belongs-to,join:sequencing_run_id=id" json:"-"`
	Nanobodies    []*Nanobody    `bun:"m2m:sequencing_run_results_nanobodies,join:Results=Nanobody" json:"nanobodies,omitempty"`
}

// Validate checks the required storage keys.
func (r *SequencingRunResults) Validate() error {
	if r.SequencingRunID == 0 {
		return errors.New("sequencing run is required")
	}
	if r.Seq < 0 {
		return errors.New("page must not be negative")
	}
	if r.SeqresFile == "" || r.AIRRFile == "" || r.ParametersFile == "" {
		return errors.New("results file storage keys are required")
	}
	if r.WellPosOffset < 0 {
		return errors.New("well position offset must not be negative")
	}
	return nil
}

// SequencingRunResultsNanobody links results to the nanobodies whose
// sequence they contain.
type SequencingRunResultsNanobody struct {
	bun.BaseModel `bun:"table:sequencing_run_results_nanobodies,alias:srrn"`

	ResultsID  int64                 `bun:"results_id,pk"`
	Results    *SequencingRunResults `bun:"rel:belongs-to,join:results_id=id"`
	NanobodyID int64                 `bun:"nanobody_id,pk"`
	Nanobody   *Nanobody             `bun:"rel:belongs-to,join:nanobody_id=id"`
}
