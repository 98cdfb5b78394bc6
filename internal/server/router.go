package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/KevinAiCloud/InterviewAI/internal/analysis"
	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/loginflow"
	appmiddleware "github.com/KevinAiCloud/InterviewAI/internal/middleware"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/scores"
	"github.com/KevinAiCloud/InterviewAI/internal/telemetry"
)

// Analyzer is the set of analysis service calls the pages make.
type Analyzer interface {
	AnalyzeResume(ctx context.Context, req analysis.ResumeRequest) (*analysis.ResumeResult, error)
	AnalyzeVideo(ctx context.Context, req analysis.VideoRequest) (*analysis.VideoResult, error)
	StartAssessment(ctx context.Context, jobDescription string) (*analysis.Assessment, error)
	SubmitAssessment(ctx context.Context, sessionID string, answers map[int]string) (*analysis.AssessmentResult, error)
}

var _ Analyzer = (*analysis.Client)(nil)

// ScoreService records and lists score records.
type ScoreService interface {
	Record(ctx context.Context, e scores.Entry)
	List(ctx context.Context, f scores.Filter) ([]models.Score, error)
}

var _ ScoreService = (*scores.Service)(nil)

// RouterOptions controls the construction of the admissions HTTP router.
// Registry, Analyzer and Scores are required.
type RouterOptions struct {
	Registry *browser.Registry
	Analyzer Analyzer
	Scores   ScoreService
	// Feed streams new scores to the admin dashboard; nil disables the stream
	Feed *scores.Feed
	// RelyingParty enables Google sign-in when set
	RelyingParty *auth.RelyingParty
	LoginFlow    *loginflow.Flow
	Views        *Views

	// ResolveTimeout bounds how long a request waits for session state (default 2s)
	ResolveTimeout time.Duration

	Metrics       *telemetry.ServerMetrics
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	Logger        *slog.Logger
}

// DefaultCORSOptions returns the development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with the shared middleware, the browser
// context resolution and every page mounted.
func NewRouter(opts RouterOptions) chi.Router {
	h := newHandlers(opts)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appmiddleware.NewRequestMetricsMiddleware(opts.Metrics))

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(appmiddleware.NewBrowserContextMiddleware(opts.Registry, h.logger))

		r.Get("/", h.home)
		r.Get("/pep", h.static("pep", "PEP", "pep"))
		r.Get("/hope", h.static("hope", "HOPE", "hope"))

		r.Get("/login", h.loginPage)
		r.Post("/login", h.loginSubmit)
		r.Post("/logout", h.logout)
		if opts.RelyingParty != nil {
			r.Get("/auth/federated/login", h.federatedLogin())
			r.Get("/auth/federated/callback", h.federatedCallback())
		}

		guardOpts := appmiddleware.GuardOptions{
			Timeout: h.resolveTimeout,
			Pending: http.HandlerFunc(h.pending),
			Logger:  h.logger,
		}
		r.Group(func(r chi.Router) {
			quizOpts := guardOpts
			quizOpts.OnRedirectToLogin = keepQuizAnswers
			r.Use(appmiddleware.NewGuardMiddleware(roles.None, quizOpts))

			r.Get("/resume", h.resumePage)
			r.Post("/resume", h.resumeSubmit)
			r.Get("/video", h.videoPage)
			r.Post("/video", h.videoSubmit)
			r.Get("/quiz", h.quizPage)
			r.Post("/quiz", h.quizSubmit)
			r.Get("/result", h.resultPage)
		})
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.NewGuardMiddleware(roles.Admin, guardOpts))

			r.Get("/admin", h.adminPage)
			if opts.Feed != nil {
				r.Get("/admin/scores/stream", h.scoreStream)
			}
		})

		r.NotFound(h.notFound)
	})

	return r
}

// NewHandler wraps the router with OpenTelemetry instrumentation and an h2c
// server for HTTP/2 over cleartext.
func NewHandler(opts RouterOptions) http.Handler {
	router := NewRouter(opts)
	return h2c.NewHandler(otelhttp.NewHandler(router, "admissions"), &http2.Server{})
}

type handlers struct {
	registry       *browser.Registry
	analyzer       Analyzer
	scores         ScoreService
	feed           *scores.Feed
	rp             *auth.RelyingParty
	flow           *loginflow.Flow
	views          *Views
	resolveTimeout time.Duration
	logger         *slog.Logger
	nonce          func() (string, error)
}

func newHandlers(opts RouterOptions) *handlers {
	h := &handlers{
		registry:       opts.Registry,
		analyzer:       opts.Analyzer,
		scores:         opts.Scores,
		feed:           opts.Feed,
		rp:             opts.RelyingParty,
		flow:           opts.LoginFlow,
		views:          opts.Views,
		resolveTimeout: opts.ResolveTimeout,
		logger:         logging.OrDiscard(opts.Logger),
		nonce:          auth.GenerateNonce,
	}
	if h.flow == nil {
		h.flow = loginflow.New(h.logger, nil)
	}
	if h.views == nil {
		h.views = MustLoadViews()
	}
	if h.resolveTimeout <= 0 {
		h.resolveTimeout = 2 * time.Second
	}
	return h
}
