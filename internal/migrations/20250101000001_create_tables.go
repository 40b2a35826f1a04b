package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/mkoziy/antigen/sequencing/internal/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		db.RegisterModel((*models.SequencingRunResultsNanobody)(nil))
		for _, model := range tables {
			q := db.NewCreateTable().Model(model).IfNotExists()
			for _, fk := range foreignKeys[model] {
				q = q.ForeignKey(fk)
			}
			if _, err := q.Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		for i := len(tables) - 1; i >= 0; i-- {
			if _, err := db.NewDropTable().Model(tables[i]).IfExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
