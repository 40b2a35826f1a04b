package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_elisa_wells_antigen ON elisa_wells(antigen_id)",
			"CREATE INDEX IF NOT EXISTS idx_elisa_plates_library ON elisa_plates(library_id)",
			"CREATE INDEX IF NOT EXISTS idx_libraries_cohort ON libraries(cohort_id)",
			"CREATE INDEX IF NOT EXISTS idx_nanobodies_sequence ON nanobodies(sequence)",
			"CREATE INDEX IF NOT EXISTS idx_results_nanobodies_nanobody ON sequencing_run_results_nanobodies(nanobody_id)",
		}
		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"DROP INDEX IF EXISTS idx_elisa_wells_antigen",
			"DROP INDEX IF EXISTS idx_elisa_plates_library",
			"DROP INDEX IF EXISTS idx_libraries_cohort",
			"DROP INDEX IF EXISTS idx_nanobodies_sequence",
			"DROP INDEX IF EXISTS idx_results_nanobodies_nanobody",
		}
		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}
		return nil
	})
}
