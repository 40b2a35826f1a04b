package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/mkoziy/antigen/sequencing/internal/database"
	"github.com/mkoziy/antigen/sequencing/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when another writer changed the results of
	// the same run page first.
	ErrConflict = errors.New("results were modified concurrently")
)

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// GetSequencingRun fetches a run by id.
func GetSequencingRun(ctx context.Context, db bun.IDB, id int64) (*models.SequencingRun, error) {
	run := new(models.SequencingRun)
	err := db.NewSelect().Model(run).Where("sr.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("sequencing run %d", id))
	}
	return run, nil
}

// CreateSequencingRun validates and inserts a run.
func CreateSequencingRun(ctx context.Context, db bun.IDB, run *models.SequencingRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	run.Wells.Sort()
	_, err := db.NewInsert().Model(run).Exec(ctx)
	return err
}

// GetResults fetches the results row of one run page.
func GetResults(ctx context.Context, db bun.IDB, runID int64, page int) (*models.SequencingRunResults, error) {
	res := new(models.SequencingRunResults)
	err := db.NewSelect().
		Model(res).
		Where("srr.sequencing_run_id = ?", runID).
		Where("srr.seq = ?", page).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("results for run %d page %d", runID, page))
	}
	return res, nil
}

// ListResults returns all results rows of a run ordered by page.
func ListResults(ctx context.Context, db bun.IDB, runID int64) ([]*models.SequencingRunResults, error) {
	var out []*models.SequencingRunResults
	err := db.NewSelect().
		Model(&out).
		Where("srr.sequencing_run_id = ?", runID).
		Relation("Nanobodies").
		OrderExpr("srr.seq ASC").
		Scan(ctx)
	return out, err
}

// ListAllResults returns every results row with its run, ordered by run
// and page.
func ListAllResults(ctx context.Context, db bun.IDB) ([]*models.SequencingRunResults, error) {
	var out []*models.SequencingRunResults
	err := db.NewSelect().
		Model(&out).
		Relation("SequencingRun").
		OrderExpr("srr.sequencing_run_id ASC, srr.seq ASC").
		Scan(ctx)
	return out, err
}

// ListSequencingRuns returns every run that has at least one results row.
func ListSequencingRuns(ctx context.Context, db bun.IDB) ([]*models.SequencingRun, error) {
	var out []*models.SequencingRun
	err := db.NewSelect().
		Model(&out).
		Where("EXISTS (SELECT 1 FROM sequencing_run_results AS r WHERE r.sequencing_run_id = sr.id)").
		OrderExpr("sr.id ASC").
		Scan(ctx)
	return out, err
}

// SaveResults inserts or replaces the results row of a run page and its
// nanobody links in one transaction. expectedVersion is the version the
// caller read before starting, zero when no row existed. A row that was
// created or replaced in the meantime yields ErrConflict. On replacement
// the previous row is returned so the caller can release its files.
func SaveResults(ctx context.Context, db bun.IDB, res *models.SequencingRunResults, nanobodyIDs []int64, expectedVersion int) (*models.SequencingRunResults, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	var previous *models.SequencingRunResults
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if expectedVersion == 0 {
			res.Version = 1
			if _, err := tx.NewInsert().Model(res).Exec(ctx); err != nil {
				if database.IsUniqueViolation(err) {
					return ErrConflict
				}
				return err
			}
		} else {
			prev, err := GetResults(ctx, tx, res.SequencingRunID, res.Seq)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return ErrConflict
				}
				return err
			}
			if prev.Version != expectedVersion {
				return ErrConflict
			}
			res.ID = prev.ID
			res.Version = expectedVersion + 1
			res.AddedDate = time.Now().UTC()
			result, err := tx.NewUpdate().
				Model(res).
				Column("seqres_file", "parameters_file", "airr_file", "well_pos_offset", "version", "added_by", "added_date").
				Where("srr.id = ?", prev.ID).
				Where("srr.version = ?", expectedVersion).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := result.RowsAffected(); err == nil && n == 0 {
				return ErrConflict
			}
			if _, err := tx.NewDelete().
				Model((*models.SequencingRunResultsNanobody)(nil)).
				Where("results_id = ?", res.ID).
				Exec(ctx); err != nil {
				return err
			}
			previous = prev
		}

		if len(nanobodyIDs) == 0 {
			return nil
		}
		links := make([]*models.SequencingRunResultsNanobody, 0, len(nanobodyIDs))
		for _, id := range nanobodyIDs {
			links = append(links, &models.SequencingRunResultsNanobody{ResultsID: res.ID, NanobodyID: id})
		}
		_, err := tx.NewInsert().Model(&links).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}
