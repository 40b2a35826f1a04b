package models

import (
	"errors"
	"regexp"
	"time"

	"github.com/uptrace/bun"
)

var aminoAcids = regexp.MustCompile(`^[ACDEFGHIKLMNPQRSTVWXY]*$`)

// Antigen is the target protein an ELISA well was coated with.
type Antigen struct {
	bun.BaseModel `bun:"table:antigens,alias:ag"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	ShortName     string    `bun:"short_name,unique,notnull" json:"short_name" yaml:"short_name"`
	PreferredName string    `bun:"preferred_name,notnull,default:''" json:"preferred_name" yaml:"preferred_name"`
	UniprotID     *string   `bun:"uniprot_id,unique" json:"uniprot_id,omitempty" yaml:"uniprot_id"`
	Sequence      *string   `bun:"sequence" json:"sequence,omitempty" yaml:"sequence"`
	AddedDate     time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`
}

// Validate checks the short name and amino acid alphabet.
func (a *Antigen) Validate() error {
	if a.ShortName == "" {
		return errors.New("antigen short name is required")
	}
	if a.Sequence != nil && !aminoAcids.MatchString(*a.Sequence) {
		return errors.New("antigen sequence must use single-letter amino acid codes")
	}
	return nil
}

// Nanobody is a named binder identified by its amino acid sequence.
type Nanobody struct {
	bun.BaseModel `bun:"table:nanobodies,alias:nb"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	Name      string    `bun:"name,unique,notnull" json:"name" yaml:"name"`
	Sequence  string    `bun:"sequence,notnull,default:''" json:"sequence" yaml:"sequence"`
	AddedDate time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`
}

// Validate checks the name and sequence alphabet.
func (n *Nanobody) Validate() error {
	if n.Name == "" {
		return errors.New("nanobody name is required")
	}
	if !aminoAcids.MatchString(n.Sequence) {
		return errors.New("nanobody sequence must use single-letter amino acid codes")
	}
	return nil
}
