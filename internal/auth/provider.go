// Package auth talks to the external identity provider. It defines the
// provider contract the session layer depends on, the Identity Toolkit REST
// client, the per-browser-context Client that mirrors a provider session, and
// the OIDC relying party used for Google sign-in.
package auth

import (
	"context"

	"github.com/samber/oops"
)

// Principal is an authenticated identity as reported by the provider.
type Principal struct {
	ID          string
	Email       string
	DisplayName string
}

// FederatedCredential is the proof obtained from a federated identity
// provider, exchanged with the auth provider for a session.
type FederatedCredential struct {
	// ProviderID is the provider's identifier, e.g. "google.com"
	ProviderID string
	// IDToken is the OIDC ID token issued by the federated provider
	IDToken string
	// RequestURI is the callback URI the token was obtained on
	RequestURI string
}

// Provider is the contract of the external authentication service as seen
// by one browser context.
type Provider interface {
	CreateAccount(ctx context.Context, email, secret string) (*Principal, error)
	Authenticate(ctx context.Context, email, secret string) (*Principal, error)
	AuthenticateFederated(ctx context.Context, cred FederatedCredential) (*Principal, error)
	EndSession(ctx context.Context) error

	// OnSessionChange registers handler for session changes. Notifications are
	// delivered in emission order, one at a time. If the initial session state
	// is already known, handler receives it promptly after registration.
	OnSessionChange(handler func(*Principal)) (unsubscribe func())

	// CurrentPrincipal returns the principal known from the local credential
	// cache, which may not have been verified yet.
	CurrentPrincipal() *Principal
}

// Error codes attached to provider failures.
const (
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeEmailExists         = "AUTH_EMAIL_EXISTS"
	CodeWeakPassword        = "AUTH_WEAK_PASSWORD"
	CodeSessionExpired      = "AUTH_SESSION_EXPIRED"
	CodeFederatedFailed     = "AUTH_FEDERATED_FAILED"
	CodeProviderUnavailable = "AUTH_PROVIDER_UNAVAILABLE"
	CodeProviderError       = "AUTH_PROVIDER_ERROR"
	CodeNotConfigured       = "AUTH_NOT_CONFIGURED"
	CodeClientClosed        = "AUTH_CLIENT_CLOSED"
)

// ErrorCode returns the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
