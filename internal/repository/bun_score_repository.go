package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KevinAiCloud/InterviewAI/internal/db/bunx"
	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/uptrace/bun"
)

// BunScoreRepository implements ScoreRepository using Bun ORM
type BunScoreRepository struct {
	db *bun.DB
}

// NewBunScoreRepository creates a new Bun-based score repository
func NewBunScoreRepository(db *bun.DB) *BunScoreRepository {
	return &BunScoreRepository{db: db}
}

// Create inserts a score, assigning an ID and server timestamp when unset
func (r *BunScoreRepository) Create(ctx context.Context, score *models.Score) error {
	if score.ID == "" {
		score.ID = bunx.NewUUIDv7()
	}
	if score.Timestamp.IsZero() {
		score.Timestamp = time.Now().UTC()
	}
	if score.Details == nil {
		score.Details = map[string]any{}
	}

	_, err := r.db.NewInsert().
		Model(score).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create score: %w", err)
	}
	return nil
}

// List returns scores matching the filter, newest first
func (r *BunScoreRepository) List(ctx context.Context, filter ScoreFilter) ([]models.Score, error) {
	var scores []models.Score
	q := r.db.NewSelect().
		Model(&scores).
		OrderExpr(`s."timestamp" DESC`).
		OrderExpr("s.id DESC")

	if filter.Type != "" {
		q = q.Where("s.type = ?", filter.Type)
	}
	if filter.UID != "" {
		q = q.Where("s.uid = ?", filter.UID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q = q.Where("LOWER(s.email) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return scores, nil
}
