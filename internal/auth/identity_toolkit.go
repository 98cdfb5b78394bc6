package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/KevinAiCloud/InterviewAI/internal/config"
)

// Credential is a provider session: the principal plus the tokens that keep it alive.
type Credential struct {
	Principal    Principal
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the ID token is expired or expires within skew.
func (c *Credential) Expired(now time.Time, skew time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(skew))
}

// AccountAPI is the remote account service behind a Client.
type AccountAPI interface {
	SignUp(ctx context.Context, email, password string) (*Credential, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Credential, error)
	SignInWithIdP(ctx context.Context, cred FederatedCredential) (*Credential, error)
	// Refresh exchanges a refresh token for a new ID token. The returned
	// credential carries only the principal ID; callers keep the profile.
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// IdentityToolkit is an AccountAPI over the Identity Toolkit and Secure Token REST APIs.
type IdentityToolkit struct {
	apiKey     string
	baseURL    string
	tokenURL   string
	httpClient *http.Client
}

// NewIdentityToolkit creates the REST client. A nil httpClient uses http.DefaultClient.
func NewIdentityToolkit(cfg config.IdentityConfig, httpClient *http.Client) *IdentityToolkit {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IdentityToolkit{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:   cfg.TokenURL,
		httpClient: httpClient,
	}
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type idpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignUp creates an email/password account and signs it in.
func (it *IdentityToolkit) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	var resp accountResponse
	if err := it.postJSON(ctx, "accounts:signUp", passwordRequest{email, password, true}, &resp); err != nil {
		return nil, err
	}
	return resp.credential(), nil
}

// SignInWithPassword signs in an existing email/password account.
func (it *IdentityToolkit) SignInWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	var resp accountResponse
	if err := it.postJSON(ctx, "accounts:signInWithPassword", passwordRequest{email, password, true}, &resp); err != nil {
		return nil, err
	}
	return resp.credential(), nil
}

// SignInWithIdP exchanges a federated ID token for a provider session.
func (it *IdentityToolkit) SignInWithIdP(ctx context.Context, cred FederatedCredential) (*Credential, error) {
	postBody := url.Values{
		"id_token":   {cred.IDToken},
		"providerId": {cred.ProviderID},
	}.Encode()
	requestURI := cred.RequestURI
	if requestURI == "" {
		requestURI = "http://localhost"
	}

	var resp accountResponse
	req := idpRequest{PostBody: postBody, RequestURI: requestURI, ReturnIdpCredential: true, ReturnSecureToken: true}
	if err := it.postJSON(ctx, "accounts:signInWithIdp", req, &resp); err != nil {
		if ErrorCode(err) == CodeInvalidCredentials {
			// oops reports the innermost code, so re-code without wrapping.
			return nil, oops.Code(CodeFederatedFailed).With("provider_id", cred.ProviderID).Errorf("federated sign-in rejected: %v", err)
		}
		return nil, err
	}
	return resp.credential(), nil
}

// Refresh exchanges a refresh token for a fresh ID token.
func (it *IdentityToolkit) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	endpoint := it.tokenURL + "?key=" + url.QueryEscape(it.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, oops.Code(CodeProviderError).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if err := it.do(req, "token", &resp); err != nil {
		return nil, err
	}
	return &Credential{
		Principal:    Principal{ID: resp.UserID},
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tokenExpiry(resp.IDToken, resp.ExpiresIn),
	}, nil
}

func (it *IdentityToolkit) postJSON(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return oops.Code(CodeProviderError).With("method", method).Wrap(err)
	}
	endpoint := fmt.Sprintf("%s/%s?key=%s", it.baseURL, method, url.QueryEscape(it.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return oops.Code(CodeProviderError).With("method", method).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return it.do(req, method, out)
}

func (it *IdentityToolkit) do(req *http.Request, method string, out any) error {
	if it.apiKey == "" {
		return oops.Code(CodeNotConfigured).With("method", method).Errorf("identity provider API key is not configured")
	}

	resp, err := it.httpClient.Do(req)
	if err != nil {
		return oops.Code(CodeProviderUnavailable).With("method", method).Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return oops.Code(CodeProviderUnavailable).With("method", method).Wrap(err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return classifyAPIError(method, resp.StatusCode, apiErr.Error.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return oops.Code(CodeProviderError).With("method", method).Wrap(err)
	}
	return nil
}

// classifyAPIError maps provider error messages to codes. Messages may carry
// a detail suffix, e.g. "WEAK_PASSWORD : Password should be at least 6 characters".
func classifyAPIError(method string, status int, message string) error {
	reason, _, _ := strings.Cut(message, " ")
	builder := oops.With("method", method).With("status", status).With("reason", reason)

	switch reason {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_EMAIL", "MISSING_PASSWORD":
		return builder.Code(CodeInvalidCredentials).Errorf("invalid credentials: %s", reason)
	case "EMAIL_EXISTS":
		return builder.Code(CodeEmailExists).Errorf("email already registered")
	case "WEAK_PASSWORD":
		return builder.Code(CodeWeakPassword).Errorf("password too weak")
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "INVALID_ID_TOKEN":
		return builder.Code(CodeSessionExpired).Errorf("session expired: %s", reason)
	case "INVALID_IDP_RESPONSE":
		return builder.Code(CodeFederatedFailed).Errorf("federated credential rejected")
	}

	if status >= 500 || status == http.StatusTooManyRequests {
		return builder.Code(CodeProviderUnavailable).Errorf("identity provider unavailable: %d %s", status, message)
	}
	return builder.Code(CodeProviderError).Errorf("identity provider error: %d %s", status, message)
}

func (r *accountResponse) credential() *Credential {
	return &Credential{
		Principal: Principal{
			ID:          r.LocalID,
			Email:       r.Email,
			DisplayName: r.DisplayName,
		},
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    tokenExpiry(r.IDToken, r.ExpiresIn),
	}
}

// tokenExpiry reads the exp claim of the ID token. The provider already
// verified the token, so signature checking is not repeated here. When the
// claim is unavailable the expires-in seconds from the response are used.
func tokenExpiry(idToken, expiresIn string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil {
		return time.Now().Add(time.Duration(secs) * time.Second)
	}
	return time.Now().Add(time.Hour)
}

// IsUnavailable reports whether err means the provider could not be reached.
func IsUnavailable(err error) bool {
	return ErrorCode(err) == CodeProviderUnavailable || errors.Is(err, context.DeadlineExceeded)
}
