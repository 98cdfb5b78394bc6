package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
)

// browserContextKey is used to store the browser context of a request
type browserContextKey struct{}

// NewBrowserContextMiddleware resolves the browser context of every request
// and stores it in the request context.
func NewBrowserContextMiddleware(registry *browser.Registry, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logging.OrDiscard(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bc, err := registry.Resolve(w, r)
			if err != nil {
				logging.Error(r.Context(), logger, "resolve browser context", err, "path", r.URL.Path)
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBrowserContext(r.Context(), bc)))
		})
	}
}

// WithBrowserContext returns ctx carrying bc.
func WithBrowserContext(ctx context.Context, bc *browser.Context) context.Context {
	return context.WithValue(ctx, browserContextKey{}, bc)
}

// FromContext returns the browser context stored by the middleware.
func FromContext(ctx context.Context) (*browser.Context, bool) {
	bc, ok := ctx.Value(browserContextKey{}).(*browser.Context)
	return bc, ok && bc != nil
}
