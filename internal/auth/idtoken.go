package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/KevinAiCloud/InterviewAI/internal/config"
)

// CodeInvalidToken marks an ID token that failed signature or claim checks.
const CodeInvalidToken = "AUTH_INVALID_TOKEN"

// TokenVerifier checks an ID token against the identity provider's keys.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Principal, error)
}

// IDTokenVerifier validates Identity Toolkit ID tokens using the issuer's
// published JWKS.
type IDTokenVerifier struct {
	tokenHandler *oidctoken.TokenHandler[map[string]any]
}

var _ TokenVerifier = (*IDTokenVerifier)(nil)

// NewIDTokenVerifier builds a verifier for cfg.Issuer with cfg.ProjectID as
// the required audience. Keys are fetched on first use.
func NewIDTokenVerifier(cfg config.IdentityConfig) (*IDTokenVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("id token issuer is required")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("identity project id is required")
	}

	tokenHandler, err := oidctoken.New[map[string]any](nil,
		options.WithIssuer(cfg.Issuer),
		options.WithRequiredAudience(cfg.ProjectID),
		options.WithLazyLoadJwks(true),
	)
	if err != nil {
		return nil, oops.Wrapf(err, "initialise id token handler")
	}
	return &IDTokenVerifier{tokenHandler: tokenHandler}, nil
}

// VerifyIDToken parses and validates idToken and returns its principal.
func (v *IDTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Principal, error) {
	claims, err := v.tokenHandler.ParseToken(ctx, idToken)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).Wrapf(err, "verify id token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, oops.Code(CodeInvalidToken).Errorf("id token missing sub claim")
	}
	p := &Principal{ID: sub}
	p.Email, _ = claims["email"].(string)
	p.DisplayName, _ = claims["name"].(string)
	return p, nil
}
