package migrations

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/database"
	"github.com/mkoziy/antigen/sequencing/internal/models"
)

func TestMigrationsRegistered(t *testing.T) {
	ms := Migrations.Sorted()
	want := []string{"20250101000001", "20250101000002"}
	if len(ms) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(ms))
	}
	for i, m := range ms {
		if m.Name != want[i] {
			t.Fatalf("migration %d: expected name %s, got %s", i, want[i], m.Name)
		}
	}
	if ms[0].Comment != "create_tables" {
		t.Fatalf("unexpected comment %q", ms[0].Comment)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(ctx, db, zap.NewNop()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var names []string
	if err := db.NewSelect().
		Column("name").
		Table("sqlite_master").
		Where("type = ?", "table").
		Where("name NOT LIKE ?", "bun_%").
		Where("name NOT LIKE ?", "sqlite_%").
		Order("name").
		Scan(ctx, &names); err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(names) != len(tables) {
		t.Fatalf("expected %d tables, got %v", len(tables), names)
	}

	res := &models.SequencingRunResults{SequencingRunID: 1, SeqresFile: "a", ParametersFile: "b", AIRRFile: "c", Version: 1}
	if _, err := db.NewInsert().Model(&models.SequencingRun{ID: 1}).Exec(ctx); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	if _, err := db.NewInsert().Model(res).Exec(ctx); err != nil {
		t.Fatalf("insert results: %v", err)
	}
	dup := *res
	dup.ID = 0
	_, err = db.NewInsert().Model(&dup).Exec(ctx)
	if !database.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for a second results row on the same page, got %v", err)
	}
}
