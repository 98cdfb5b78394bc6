package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/guard"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/loginflow"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

// await waits up to the resolve timeout for pred and returns the latest snapshot.
func (h *handlers) await(r *http.Request, bc *browser.Context, pred func(session.State) bool) session.State {
	ctx, cancel := context.WithTimeout(r.Context(), h.resolveTimeout)
	defer cancel()
	state, _ := bc.Store.Await(ctx, pred)
	return state
}

func resolved(s session.State) bool { return s.Resolved }

func signedIn(s session.State) bool { return s.Resolved && s.SignedIn() }

func signedOut(s session.State) bool { return s.Resolved && s.Principal == nil }

// loginPage renders the sign-in form, or redirects once the snapshot has a
// principal. It is also where sign-in submissions and the federated
// callback land, so every redirect after sign-in is computed here.
func (h *handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	form := loginflow.Form{Mode: loginflow.ParseMode(query.Get("mode"))}
	h.renderLogin(w, r, h.await(r, bc, resolved), form, failureFromQuery(query.Get("error")))
}

func (h *handlers) loginSubmit(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	form := loginflow.Form{
		Mode:     loginflow.ParseMode(r.PostFormValue("mode")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	if err := h.flow.Submit(r.Context(), bc.Store, form); err != nil {
		h.renderLogin(w, r, h.await(r, bc, resolved), form, loginflow.Classify(err, form.Mode))
		return
	}

	state := h.await(r, bc, signedIn)
	if !signedIn(state) {
		// The notification has not arrived yet; the GET re-evaluates.
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, state, form, nil)
}

func (h *handlers) renderLogin(w http.ResponseWriter, r *http.Request, state session.State, form loginflow.Form, failure *loginflow.Failure) {
	view := loginflow.Render(state, auth.PeekIntentCookie(r), form, failure)
	if view.Redirect != "" {
		auth.ClearIntentCookie(w, r)
		http.Redirect(w, r, view.Redirect, http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login", Page{
		Title:   "Login",
		Nav:     NavFor(state, "login"),
		Refresh: view.Checking,
		Data:    view,
	})
}

func failureFromQuery(cause string) *loginflow.Failure {
	switch loginflow.Cause(cause) {
	case "":
		return nil
	case loginflow.CauseNetwork:
		return &loginflow.Failure{Cause: loginflow.CauseNetwork, Message: loginflow.MsgNetwork}
	default:
		return &loginflow.Failure{Cause: loginflow.CauseProvider, Message: loginflow.MsgFederatedFailed}
	}
}

// logout ends the session and sends the browser back to the page it came
// from, where the guard decides what it may see now.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	if err := bc.Store.SignOut(r.Context()); err != nil {
		logging.Error(r.Context(), h.logger, "sign out", err)
	}
	h.await(r, bc, signedOut)
	http.Redirect(w, r, refererPath(r), http.StatusSeeOther)
}

func refererPath(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || (ref.Host != "" && ref.Host != r.Host) {
		return guard.HomePath
	}
	if path := ref.RequestURI(); auth.IsLocalPath(path) && !strings.HasPrefix(path, guard.LoginPath) {
		return path
	}
	return guard.HomePath
}

// federatedLogin starts the OIDC authorization code flow with Google.
func (h *handlers) federatedLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := h.nonce()
		if err != nil {
			logging.Error(r.Context(), h.logger, "generate oidc state", err)
			http.Redirect(w, r, guard.LoginPath+"?error="+string(loginflow.CauseProvider), http.StatusSeeOther)
			return
		}
		rp.AuthURLHandler(func() string { return state }, h.rp.RP())(w, r)
	}
}

// federatedCallback exchanges the code for Google's ID token and signs the
// browser context in with it. The browser then goes through /login like a
// password sign-in.
func (h *handlers) federatedCallback() http.HandlerFunc {
	callback := func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], _ string, _ rp.RelyingParty) {
		bc, ok := h.browserContext(w, r)
		if !ok {
			return
		}
		cred := auth.FederatedCredential{
			ProviderID: auth.GoogleProviderID,
			IDToken:    tokens.IDToken,
			RequestURI: h.rp.RedirectURI(),
		}
		if err := h.flow.SubmitFederated(r.Context(), bc.Store, cred); err != nil {
			failure := loginflow.Classify(err, loginflow.ModeFederated)
			http.Redirect(w, r, guard.LoginPath+"?error="+url.QueryEscape(string(failure.Cause)), http.StatusSeeOther)
			return
		}
		h.await(r, bc, signedIn)
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
	}
	return rp.CodeExchangeHandler(callback, h.rp.RP())
}
