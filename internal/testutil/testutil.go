// Package testutil builds seeded databases and AIRR tables for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/airr"
	"github.com/mkoziy/antigen/sequencing/internal/database"
	"github.com/mkoziy/antigen/sequencing/internal/migrations"
	"github.com/mkoziy/antigen/sequencing/internal/models"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// NanobodySequence is the protein sequence of the seeded nanobody NB1.
const NanobodySequence = "QVQLVESGGGLVQAGGSLRLSCAAS"

// NewDB opens a migrated in-memory SQLite database closed at test cleanup.
func NewDB(t testing.TB) *bun.DB {
	t.Helper()
	db, err := database.NewDB(database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := migrations.RunMigrations(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Lab returns fixtures for one project: cohort 15 (not naive), antigen
// SmCD1 on ELISA plate 1 (pan-round concentration 1) and sequencing run 1
// whose page 0 holds the first n wells of plate 1 in the same positions.
func Lab(n int) *repositories.Fixtures {
	threshold := 0.5
	od := 1.0
	f := &repositories.Fixtures{
		Projects:  []*models.Project{{ID: 1, Title: "CD1 binders", ShortTitle: "SmCD1P"}},
		Llamas:    []*models.Llama{{ID: 1, Name: "Lama1"}},
		Cohorts:   []*models.Cohort{{ID: 1, CohortNum: 15, LlamaID: 1}},
		Libraries: []*models.Library{{ID: 1, ProjectID: 1, CohortID: 1}},
		Antigens:  []*models.Antigen{{ID: 1, ShortName: "SmCD1"}},
		ElisaPlates: []*models.ElisaPlate{
			{ID: 1, LibraryID: 1, PanRoundConcentration: 1, OpticalDensityThreshold: &threshold},
		},
		Nanobodies: []*models.Nanobody{{ID: 1, Name: "NB1", Sequence: NanobodySequence}},
	}
	run := &models.SequencingRun{
		ID:              1,
		PlateThresholds: models.PlateThresholds{{ElisaPlate: 1, OpticalDensityThreshold: threshold}},
	}
	for loc := 1; loc <= 96; loc++ {
		f.ElisaWells = append(f.ElisaWells, &models.ElisaWell{
			ID: int64(loc), PlateID: 1, Location: loc, AntigenID: 1, OpticalDensity: &od,
		})
		if loc <= n {
			run.Wells = append(run.Wells, models.WellEntry{
				Plate: 0, Location: loc, ElisaWell: models.ElisaWellRef{Plate: 1, Location: loc},
			})
		}
	}
	f.SequencingRuns = []*models.SequencingRun{run}
	return f
}

// Seed inserts fixtures.
func Seed(t testing.TB, db bun.IDB, f *repositories.Fixtures) {
	t.Helper()
	if err := repositories.InsertFixtures(context.Background(), db, f); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// AIRRTable renders rows as a tab-separated AIRR table with the full
// column allow-list plus one column the readers ignore.
func AIRRTable(rows ...airr.Row) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(airr.Columns, "\t"))
	sb.WriteString("\tv_call\n")
	for _, r := range rows {
		vals := make([]string, 0, len(airr.Columns)+1)
		for _, c := range airr.Columns {
			vals = append(vals, r.Get(c))
		}
		vals = append(vals, "IGHV3S53*01")
		sb.WriteString(strings.Join(vals, "\t"))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Row returns a productive AIRR row for a sequence id.
func Row(id, alignment, cdr3 string) airr.Row {
	return airr.Row{
		SequenceID:          id,
		Productive:          "T",
		StopCodon:           "F",
		SequenceAlignmentAA: alignment,
		CDR3AA:              cdr3,
	}
}

// WellIDs returns "{prefix}_{label}" for the first n canonical wells.
func WellIDs(prefix string, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("%s_%s", prefix, wells.Labels[i]))
	}
	return out
}
