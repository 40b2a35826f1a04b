package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Project groups libraries under a research programme.
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	Title       string    `bun:"title,unique,notnull" json:"title" yaml:"title"`
	ShortTitle  string    `bun:"short_title,unique,notnull" json:"short_title" yaml:"short_title"`
	Description *string   `bun:"description" json:"description,omitempty" yaml:"description"`
	AddedBy     string    `bun:"added_by,notnull,default:''" json:"added_by" yaml:"added_by"`
	AddedDate   time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`
}

// Validate checks required fields.
func (p *Project) Validate() error {
	if p.Title == "" || p.ShortTitle == "" {
		return errors.New("project title and short title are required")
	}
	return nil
}

// Llama is an immunised animal.
type Llama struct {
	bun.BaseModel `bun:"table:llamas,alias:ll"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	Name      string    `bun:"name,unique,notnull" json:"name" yaml:"name"`
	Notes     *string   `bun:"notes" json:"notes,omitempty" yaml:"notes"`
	AddedDate time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`
}

// Cohort is one immunisation or blood draw event.
type Cohort struct {
	bun.BaseModel `bun:"table:cohorts,alias:co"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	CohortNum int       `bun:"cohort_num,notnull" json:"cohort_num" yaml:"cohort_num"`
	IsNaive   bool      `bun:"is_naive,notnull,default:false" json:"is_naive" yaml:"is_naive"`
	LlamaID   int64     `bun:"llama_id,notnull" json:"llama_id" yaml:"llama_id"`
	AddedDate time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`

	Llama *Llama `bun:"rel:belongs-to,join:llama_id=id" json:"llama,omitempty" yaml:"-"`
}

// Validate checks the cohort number.
func (c *Cohort) Validate() error {
	if c.CohortNum <= 0 {
		return errors.New("cohort number must be positive")
	}
	if c.LlamaID == 0 {
		return errors.New("cohort llama is required")
	}
	return nil
}

// Library is a phage display library built from a cohort for a project.
type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:lib"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id" yaml:"id"`
	ProjectID  int64     `bun:"project_id,notnull" json:"project_id" yaml:"project_id"`
	CohortID   int64     `bun:"cohort_id,notnull" json:"cohort_id" yaml:"cohort_id"`
	Sublibrary *string   `bun:"sublibrary" json:"sublibrary,omitempty" yaml:"sublibrary"`
	AddedDate  time.Time `bun:"added_date,nullzero,notnull,default:current_timestamp" json:"added_date" yaml:"-"`

	Project *Project `bun:"rel:belongs-to,join:project_id=id" json:"project,omitempty" yaml:"-"`
	Cohort  *Cohort  `bun:"rel:belongs-to,join:cohort_id=id" json:"cohort,omitempty" yaml:"-"`
}

// SublibrarySuffix returns the sub-library or an empty string.
func (l *Library) SublibrarySuffix() string {
	if l.Sublibrary == nil {
		return ""
	}
	return *l.Sublibrary
}
