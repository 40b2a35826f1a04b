package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/mkoziy/antigen/sequencing/internal/models"
)

// ElisaWellsOnPlates loads every well on the given plates with the antigen
// and the plate's library and cohort.
func ElisaWellsOnPlates(ctx context.Context, db bun.IDB, plateIDs []int64) ([]*models.ElisaWell, error) {
	if len(plateIDs) == 0 {
		return nil, nil
	}
	var out []*models.ElisaWell
	err := db.NewSelect().
		Model(&out).
		Relation("Antigen").
		Relation("Plate").
		Relation("Plate.Library").
		Relation("Plate.Library.Cohort").
		Where("ew.plate_id IN (?)", bun.In(plateIDs)).
		OrderExpr("ew.plate_id ASC, ew.location ASC").
		Scan(ctx)
	return out, err
}

// NanobodiesBySequence returns nanobodies whose sequence is one of seqs.
func NanobodiesBySequence(ctx context.Context, db bun.IDB, seqs []string) ([]*models.Nanobody, error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	var out []*models.Nanobody
	err := db.NewSelect().
		Model(&out).
		Where("nb.sequence IN (?)", bun.In(seqs)).
		OrderExpr("nb.id ASC").
		Scan(ctx)
	return out, err
}
