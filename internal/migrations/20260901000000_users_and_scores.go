package migrations

import (
	"context"
	"fmt"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260901000000, down_20260901000000)
}

// up_20260901000000 creates the role records and score tables
func up_20260901000000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating scores table...")
	_, err = db.NewCreateTable().
		Model((*models.Score)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create scores table: %w", err)
	}

	// The admin dashboard always reads newest first, optionally narrowed by type.
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_scores_timestamp ON scores("timestamp" DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create scores timestamp index: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_scores_type ON scores(type)`)
	if err != nil {
		return fmt.Errorf("failed to create scores type index: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_scores_uid ON scores(uid)`)
	if err != nil {
		return fmt.Errorf("failed to create scores uid index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

func down_20260901000000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping scores and users tables...")
	if _, err := db.NewDropTable().Model((*models.Score)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop scores table: %w", err)
	}
	if _, err := db.NewDropTable().Model((*models.User)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop users table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
