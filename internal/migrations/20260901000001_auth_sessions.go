package migrations

import (
	"context"
	"fmt"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260901000001, down_20260901000001)
}

// up_20260901000001 creates the persisted provider credentials table
func up_20260901000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating auth_sessions table...")
	_, err := db.NewCreateTable().
		Model((*models.AuthSession)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create auth_sessions table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_auth_sessions_updated_at ON auth_sessions(updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to create auth_sessions updated_at index: %w", err)
	}
	fmt.Println(" OK")
	return nil
}

func down_20260901000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping auth_sessions table...")
	if _, err := db.NewDropTable().Model((*models.AuthSession)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop auth_sessions table: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
