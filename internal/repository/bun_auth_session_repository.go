package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/uptrace/bun"
)

// BunAuthSessionRepository implements AuthSessionRepository using Bun ORM
type BunAuthSessionRepository struct {
	db *bun.DB
}

// NewBunAuthSessionRepository creates a new Bun-based auth session repository
func NewBunAuthSessionRepository(db *bun.DB) *BunAuthSessionRepository {
	return &BunAuthSessionRepository{db: db}
}

// Get retrieves the credential stored for a browser context
func (r *BunAuthSessionRepository) Get(ctx context.Context, contextID string) (*models.AuthSession, error) {
	session := new(models.AuthSession)
	err := r.db.NewSelect().
		Model(session).
		Where("context_id = ?", contextID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auth session %s: %w", contextID, ErrNotFound)
		}
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	return session, nil
}

// Upsert stores the credential, replacing any previous one for the context
func (r *BunAuthSessionRepository) Upsert(ctx context.Context, session *models.AuthSession) error {
	session.UpdatedAt = time.Now().UTC()
	_, err := r.db.NewInsert().
		Model(session).
		On("CONFLICT (context_id) DO UPDATE").
		Set("principal_id = EXCLUDED.principal_id").
		Set("email = EXCLUDED.email").
		Set("display_name = EXCLUDED.display_name").
		Set("id_token = EXCLUDED.id_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert auth session: %w", err)
	}
	return nil
}

// Delete removes the credential of a browser context. Deleting a missing row is not an error.
func (r *BunAuthSessionRepository) Delete(ctx context.Context, contextID string) error {
	_, err := r.db.NewDelete().
		Model((*models.AuthSession)(nil)).
		Where("context_id = ?", contextID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}

// DeleteStale removes credentials of contexts idle since before
func (r *BunAuthSessionRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.AuthSession)(nil)).
		Where("updated_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete stale auth sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
