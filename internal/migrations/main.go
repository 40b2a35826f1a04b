package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/models"
)

var Migrations = migrate.NewMigrations()

// tables in dependency order.
var tables = []interface{}{
	(*models.Project)(nil),
	(*models.Llama)(nil),
	(*models.Cohort)(nil),
	(*models.Library)(nil),
	(*models.Antigen)(nil),
	(*models.ElisaPlate)(nil),
	(*models.ElisaWell)(nil),
	(*models.Nanobody)(nil),
	(*models.SequencingRun)(nil),
	(*models.SequencingRunResults)(nil),
	(*models.SequencingRunResultsNanobody)(nil),
}

var foreignKeys = map[interface{}][]string{
	(*models.Cohort)(nil):     {`("llama_id") REFERENCES "llamas" ("id")`},
	(*models.Library)(nil):    {`("project_id") REFERENCES "projects" ("id")`, `("cohort_id") REFERENCES "cohorts" ("id")`},
	(*models.ElisaPlate)(nil): {`("library_id") REFERENCES "libraries" ("id")`},
	(*models.ElisaWell)(nil): {
		`("plate_id") REFERENCES "elisa_plates" ("id") ON DELETE CASCADE`,
		`("antigen_id") REFERENCES "antigens" ("id")`,
	},
	(*models.SequencingRunResults)(nil): {`("sequencing_run_id") REFERENCES "sequencing_runs" ("id") ON DELETE CASCADE`},
	(*models.SequencingRunResultsNanobody)(nil): {
		`("results_id") REFERENCES "sequencing_run_results" ("id") ON DELETE CASCADE`,
		`("nanobody_id") REFERENCES "nanobodies" ("id") ON DELETE CASCADE`,
	},
}

// RunMigrations applies all pending migrations.
func RunMigrations(ctx context.Context, db *bun.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}

	if group.IsZero() {
		logger.Info("no new migrations to run")
		return nil
	}

	logger.Info("migrated", zap.String("group", group.String()))
	return nil
}
