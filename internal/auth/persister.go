package auth

import (
	"context"
	"errors"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/repository"
)

// SessionPersister stores one browser context's credential in the auth_sessions table.
type SessionPersister struct {
	repo      repository.AuthSessionRepository
	contextID string
}

// NewSessionPersister creates a persister bound to a browser context.
func NewSessionPersister(repo repository.AuthSessionRepository, contextID string) *SessionPersister {
	return &SessionPersister{repo: repo, contextID: contextID}
}

// Load implements Persister.
func (p *SessionPersister) Load(ctx context.Context) (*Credential, error) {
	row, err := p.repo.Get(ctx, p.contextID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Credential{
		Principal: Principal{
			ID:          row.PrincipalID,
			Email:       row.Email,
			DisplayName: row.DisplayName,
		},
		IDToken:      row.IDToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

// Save implements Persister.
func (p *SessionPersister) Save(ctx context.Context, cred *Credential) error {
	return p.repo.Upsert(ctx, &models.AuthSession{
		ContextID:    p.contextID,
		PrincipalID:  cred.Principal.ID,
		Email:        cred.Principal.Email,
		DisplayName:  cred.Principal.DisplayName,
		IDToken:      cred.IDToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt.UTC(),
	})
}

// Clear implements Persister.
func (p *SessionPersister) Clear(ctx context.Context) error {
	return p.repo.Delete(ctx, p.contextID)
}
