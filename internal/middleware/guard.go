package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/guard"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

type sessionStateKey struct{}

// GuardOptions configures NewGuardMiddleware.
type GuardOptions struct {
	// Timeout bounds the wait for the session (and a required role) to resolve
	Timeout time.Duration

	// Pending renders the neutral loader. Defaults to a self-refreshing page.
	Pending http.Handler

	// OnRedirectToLogin runs before a request without a session is sent to
	// sign in, e.g. to keep form input in the browser context's page state.
	OnRedirectToLogin func(w http.ResponseWriter, r *http.Request, bc *browser.Context)

	Logger *slog.Logger
}

// NewGuardMiddleware gates the wrapped handler on the browser context's
// session. require is roles.None for pages any signed-in principal may see.
// Allowed requests carry the evaluated snapshot, see SessionFromContext.
func NewGuardMiddleware(require roles.Role, opts GuardOptions) func(http.Handler) http.Handler {
	logger := logging.OrDiscard(opts.Logger)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pending := opts.Pending
	if pending == nil {
		pending = http.HandlerFunc(defaultPendingHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bc, ok := FromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "guard without browser context", "path", r.URL.Path)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			state := awaitGuardState(r.Context(), bc.Store, require, timeout)
			location := r.URL.RequestURI()
			decision := guard.Evaluate(state, location, require)

			switch decision.Kind {
			case guard.Pending:
				pending.ServeHTTP(w, r)
			case guard.Redirect:
				if decision.Target == guard.LoginPath {
					auth.SetIntentCookie(w, r, decision.Intent)
					if opts.OnRedirectToLogin != nil {
						opts.OnRedirectToLogin(w, r, bc)
					}
				}
				logger.DebugContext(r.Context(), "guard redirect",
					"path", r.URL.Path, "target", decision.Target, "require", require.String())
				http.Redirect(w, r, decision.Target, http.StatusSeeOther)
			default:
				ctx := context.WithValue(r.Context(), sessionStateKey{}, state)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// awaitGuardState waits until the session is resolved and, when a role is
// required, until the signed-in principal's role is known. On timeout it
// returns the latest snapshot.
func awaitGuardState(ctx context.Context, store *session.Store, require roles.Role, timeout time.Duration) session.State {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state, err := store.Await(ctx, func(s session.State) bool {
		if !s.Resolved {
			return false
		}
		return require == roles.None || s.Principal == nil || s.Role != roles.None
	})
	if err != nil {
		return store.Read()
	}
	return state
}

// SessionFromContext returns the snapshot the guard allowed the request with.
func SessionFromContext(ctx context.Context) (session.State, bool) {
	state, ok := ctx.Value(sessionStateKey{}).(session.State)
	return state, ok
}

const pendingPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="1">
<title>Loading</title>
</head>
<body>
<div class="loader" role="status" aria-live="polite">Loading...</div>
</body>
</html>
`

func defaultPendingHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pendingPage))
}
