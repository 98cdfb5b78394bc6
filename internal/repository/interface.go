package repository

import (
	"context"
	"errors"
	"time"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
)

// ErrNotFound is wrapped by every lookup that matched no row.
var ErrNotFound = errors.New("not found")

// UserRepository exposes persistence operations for role records.
type UserRepository interface {
	// Create inserts the record unless one already exists for the ID.
	// It reports whether this call created it.
	Create(ctx context.Context, user *models.User) (bool, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetRole(ctx context.Context, id, role string) error
}

// ScoreFilter narrows a score listing.
type ScoreFilter struct {
	// Type restricts to one activity type; empty means all
	Type string
	// Search is a case-insensitive substring of the candidate email
	Search string
	// UID restricts to one candidate
	UID string
	// Limit caps the number of rows; zero means no limit
	Limit int
}

// ScoreRepository exposes persistence operations for score records.
type ScoreRepository interface {
	Create(ctx context.Context, score *models.Score) error
	// List returns scores ordered by timestamp, newest first.
	List(ctx context.Context, filter ScoreFilter) ([]models.Score, error)
}

// AuthSessionRepository persists provider credentials per browser context.
type AuthSessionRepository interface {
	Get(ctx context.Context, contextID string) (*models.AuthSession, error)
	Upsert(ctx context.Context, session *models.AuthSession) error
	Delete(ctx context.Context, contextID string) error
	// DeleteStale removes sessions not updated since before and returns the count.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
