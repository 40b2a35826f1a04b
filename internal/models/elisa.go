package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// ElisaPlate is one 96-well binding assay run against a library.
type ElisaPlate struct {
	bun.BaseModel `bun:"table:elisa_plates,alias:ep"`

	ID                      int64     `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	LibraryID               int64     `bun:"library_id,notnull" json:"library_id" yaml:"library_id"`
	PanRoundConcentration   float64   `bun:"pan_round_concentration,notnull" json:"pan_round_concentration" yaml:"pan_round_concentration"`
	OpticalDensityThreshold *float64  `bun:"optical_density_threshold" json:"optical_density_threshold,omitempty" yaml:"optical_density_threshold"`
	AddedDate               time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`

	Library *Library `bun:"rel:belongs-to,join:library_id=id" json:"library,omitempty" yaml:"-"`
}

// Validate checks the concentration and threshold.
func (p *ElisaPlate) Validate() error {
	if p.LibraryID == 0 {
		return errors.New("elisa plate library is required")
	}
	if p.PanRoundConcentration < 0 {
		return errors.New("pan round concentration must not be negative")
	}
	if p.OpticalDensityThreshold != nil && *p.OpticalDensityThreshold < 0 {
		return errors.New("optical density threshold must not be negative")
	}
	return nil
}

// ElisaWell is a single measurement on an ELISA plate.
type ElisaWell struct {
	bun.BaseModel `bun:"table:elisa_wells,alias:ew"`

	ID             int64    `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	PlateID        int64    `bun:"plate_id,notnull,unique:elisa_well_plate_location" json:"plate_id" yaml:"plate_id"`
	Location       int      `bun:"location,notnull,unique:elisa_well_plate_location" json:"location" yaml:"location"`
	AntigenID      int64    `bun:"antigen_id,notnull" json:"antigen_id" yaml:"antigen_id"`
	OpticalDensity *float64 `bun:"optical_density" json:"optical_density,omitempty" yaml:"optical_density"`

	Plate   *ElisaPlate `bun:"rel:belongs-to,join:plate_id=id" json:"plate,omitempty" yaml:"-"`
	Antigen *Antigen    `bun:"rel:belongs-to,join:antigen_id=id" json:"antigen,omitempty" yaml:"-"`
}

// Validate checks the plate location.
func (w *ElisaWell) Validate() error {
	if w.Location < 1 || w.Location > wells.PlateSize {
		return fmt.Errorf("elisa well location must be between 1 and %d inclusive", wells.PlateSize)
	}
	return nil
}

// Label returns the well label, e.g. "B7".
func (w *ElisaWell) Label() string {
	l, err := wells.ForLocation(w.Location)
	if err != nil {
		return ""
	}
	return l
}

// Functional reports whether the reading reaches threshold.
func (w *ElisaWell) Functional(threshold float64) bool {
	return w.OpticalDensity != nil && *w.OpticalDensity >= threshold
}

// FunctionalOnPlate uses the threshold stored on the loaded plate.
func (w *ElisaWell) FunctionalOnPlate() bool {
	if w.Plate == nil || w.Plate.OpticalDensityThreshold == nil {
		return false
	}
	return w.Functional(*w.Plate.OpticalDensityThreshold)
}
