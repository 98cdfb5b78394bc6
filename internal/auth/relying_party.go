package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	httphelper "github.com/zitadel/oidc/v3/pkg/http"

	"github.com/KevinAiCloud/InterviewAI/internal/config"
)

// GoogleProviderID identifies Google as the federated provider to the auth service.
const GoogleProviderID = "google.com"

// RelyingParty runs the OIDC authorization code flow against the federated
// identity provider by wrapping the zitadel/oidc RelyingParty implementation.
type RelyingParty struct {
	rp          rp.RelyingParty
	redirectURI string
}

// RelyingPartyOptions carries the cookie keys protecting the state and PKCE cookies.
type RelyingPartyOptions struct {
	HashKey  []byte
	BlockKey []byte
	Secure   bool
}

// NewRelyingParty creates a RelyingParty for federated sign-in.
// Missing cookie keys are generated, which invalidates in-flight logins on restart.
func NewRelyingParty(ctx context.Context, cfg *config.FederatedConfig, opts RelyingPartyOptions) (*RelyingParty, error) {
	hashKey := opts.HashKey
	if len(hashKey) == 0 {
		var err error
		if hashKey, err = generateRandomBytes(32); err != nil {
			return nil, fmt.Errorf("failed to generate cookie hash key: %w", err)
		}
	}
	blockKey := opts.BlockKey
	if len(blockKey) == 0 {
		var err error
		if blockKey, err = generateRandomBytes(32); err != nil {
			return nil, fmt.Errorf("failed to generate cookie crypto key: %w", err)
		}
	}

	var cookieOpts []httphelper.CookieHandlerOpt
	if !opts.Secure {
		cookieOpts = append(cookieOpts, httphelper.WithUnsecure())
	}
	cookieHandler := httphelper.NewCookieHandler(hashKey, blockKey, cookieOpts...)

	options := []rp.Option{
		rp.WithCookieHandler(cookieHandler),
		rp.WithVerifierOpts(rp.WithIssuedAtMaxAge(10 * time.Second)),
		rp.WithPKCE(cookieHandler),
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI,
		cfg.Scopes, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC relying party: %w", err)
	}

	return &RelyingParty{rp: relyingParty, redirectURI: cfg.RedirectURI}, nil
}

// RP returns the underlying zitadel relying party for the library's HTTP handlers.
func (r *RelyingParty) RP() rp.RelyingParty {
	return r.rp
}

// RedirectURI is the callback URI registered with the federated provider.
func (r *RelyingParty) RedirectURI() string {
	return r.redirectURI
}

// generateRandomBytes creates a slice of random bytes of a specified size.
func generateRandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// GenerateNonce generates a random URL-safe string.
func GenerateNonce() (string, error) {
	b, err := generateRandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
