package repositories

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"

	"github.com/mkoziy/antigen/sequencing/internal/models"
)

// Fixtures is a seed data set for the lab tables. Rows carry explicit ids
// so that references between sections resolve.
type Fixtures struct {
	Projects       []*models.Project       `yaml:"projects"`
	Llamas         []*models.Llama         `yaml:"llamas"`
	Cohorts        []*models.Cohort        `yaml:"cohorts"`
	Libraries      []*models.Library       `yaml:"libraries"`
	Antigens       []*models.Antigen       `yaml:"antigens"`
	ElisaPlates    []*models.ElisaPlate    `yaml:"elisa_plates"`
	ElisaWells     []*models.ElisaWell     `yaml:"elisa_wells"`
	Nanobodies     []*models.Nanobody      `yaml:"nanobodies"`
	SequencingRuns []*models.SequencingRun `yaml:"sequencing_runs"`
}

// LoadFixtures decodes a YAML fixture document.
func LoadFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &f, nil
}

type validator interface {
	Validate() error
}

// InsertFixtures validates and inserts all fixture rows in one transaction.
func InsertFixtures(ctx context.Context, db bun.IDB, f *Fixtures) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		insert := func(name string, rows interface{}, n int) error {
			if n == 0 {
				return nil
			}
			if _, err := tx.NewInsert().Model(rows).Exec(ctx); err != nil {
				return fmt.Errorf("insert %s: %w", name, err)
			}
			return nil
		}

		for _, rows := range [][]validator{
			asValidators(f.Projects),
			asValidators(f.Cohorts),
			asValidators(f.Antigens),
			asValidators(f.ElisaPlates),
			asValidators(f.ElisaWells),
			asValidators(f.Nanobodies),
			asValidators(f.SequencingRuns),
		} {
			for _, row := range rows {
				if err := row.Validate(); err != nil {
					return err
				}
			}
		}
		for _, run := range f.SequencingRuns {
			run.Wells.Sort()
		}

		if err := insert("projects", &f.Projects, len(f.Projects)); err != nil {
			return err
		}
		if err := insert("llamas", &f.Llamas, len(f.Llamas)); err != nil {
			return err
		}
		if err := insert("cohorts", &f.Cohorts, len(f.Cohorts)); err != nil {
			return err
		}
		if err := insert("libraries", &f.Libraries, len(f.Libraries)); err != nil {
			return err
		}
		if err := insert("antigens", &f.Antigens, len(f.Antigens)); err != nil {
			return err
		}
		if err := insert("elisa plates", &f.ElisaPlates, len(f.ElisaPlates)); err != nil {
			return err
		}
		if err := insert("elisa wells", &f.ElisaWells, len(f.ElisaWells)); err != nil {
			return err
		}
		if err := insert("nanobodies", &f.Nanobodies, len(f.Nanobodies)); err != nil {
			return err
		}
		return insert("sequencing runs", &f.SequencingRuns, len(f.SequencingRuns))
	})
}

func asValidators[T validator](rows []T) []validator {
	out := make([]validator, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
