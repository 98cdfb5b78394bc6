package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the role record of a principal. The ID is the auth provider's
// principal ID, so records are keyed the same way the provider keys accounts.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:"id,pk"`
	Email     string    `bun:"email,notnull"`
	Role      string    `bun:"role,notnull,default:'user'"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Activity types recorded in the scores table.
const (
	ScoreTypeResume     = "resume"
	ScoreTypeVideo      = "video"
	ScoreTypeAssessment = "assessment"
)

// Score is one analysis outcome for a candidate.
type Score struct {
	bun.BaseModel `bun:"table:scores,alias:s"`

	ID        string         `bun:"id,pk"`
	UID       string         `bun:"uid,notnull"`
	Email     string         `bun:"email,notnull"`
	Type      string         `bun:"type,notnull"`
	Score     float64        `bun:"score,notnull"`
	Timestamp time.Time      `bun:"timestamp,notnull,default:current_timestamp"`
	Details   map[string]any `bun:"details,type:jsonb"`
}

// AuthSession is the persisted credential of one browser context's provider client.
type AuthSession struct {
	bun.BaseModel `bun:"table:auth_sessions,alias:aus"`

	ContextID    string    `bun:"context_id,pk"`
	PrincipalID  string    `bun:"principal_id,notnull"`
	Email        string    `bun:"email,notnull"`
	DisplayName  string    `bun:"display_name"`
	IDToken      string    `bun:"id_token,notnull"`
	RefreshToken string    `bun:"refresh_token,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
