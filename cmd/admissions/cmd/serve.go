package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KevinAiCloud/InterviewAI/internal/analysis"
	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/db/bunx"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/loginflow"
	"github.com/KevinAiCloud/InterviewAI/internal/migrations"
	"github.com/KevinAiCloud/InterviewAI/internal/repository"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/scores"
	"github.com/KevinAiCloud/InterviewAI/internal/server"
	"github.com/KevinAiCloud/InterviewAI/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

const (
	sessionJanitorInterval = 10 * time.Minute
	// Matches the lifetime of the context cookie.
	sessionMaxAge = 30 * 24 * time.Hour
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admissions portal server",
	Long:  `Starts the HTTP server with the candidate pages, sign-in and the admin dashboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		logger := logging.New(logging.Options{
			Service: cfg.Observability.ServiceName,
			Version: version,
			Format:  cfg.LogFormat,
			Debug:   cfg.Debug,
		})

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				logging.Error(ctx, logger, "telemetry shutdown", err)
			}
		}()

		// Connect to database
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer bunx.Close(db)
		logger.Info("connected to database", "type", bunx.DetectDatabaseType(cfg.DatabaseURL))

		if !skipMigrations {
			groupID, err := migrations.Apply(ctx, db)
			if err != nil {
				return err
			}
			if groupID != 0 {
				logger.Info("applied migrations", "group", groupID)
			}
		}

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("failed to create server metrics: %w", err)
		}
		authMetrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("failed to create auth metrics: %w", err)
		}
		analysisMetrics, err := telemetry.NewAnalysisMetrics()
		if err != nil {
			return fmt.Errorf("failed to create analysis metrics: %w", err)
		}

		// Initialize repositories
		userRepo := repository.NewBunUserRepository(db)
		scoreRepo := repository.NewBunScoreRepository(db)
		sessionRepo := repository.NewBunAuthSessionRepository(db)

		if !cfg.HasIdentityProvider() {
			logger.Warn("identity.api_key not set, sign-in requests will fail")
		}
		accounts := auth.NewIdentityToolkit(cfg.Identity, &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		})

		var verifier auth.TokenVerifier
		if cfg.Identity.ProjectID != "" {
			verifier, err = auth.NewIDTokenVerifier(cfg.Identity)
			if err != nil {
				return fmt.Errorf("failed to create id token verifier: %w", err)
			}
		} else {
			logger.Warn("identity.project_id not set, persisted id tokens are trusted without verification")
		}

		resolver := roles.NewResolver(userRepo, roles.ResolverOptions{
			Logger:      logger,
			Metrics:     authMetrics,
			AdminEmails: cfg.AdminEmails,
		})

		hashKey := []byte(cfg.Contexts.HashKey)
		blockKey := []byte(cfg.Contexts.BlockKey)
		if len(hashKey) == 0 {
			logger.Warn("contexts.hash_key not set, browser contexts will not survive a restart")
		}

		registry, err := browser.NewRegistry(browser.Options{
			Accounts:    accounts,
			Resolver:    resolver,
			Sessions:    sessionRepo,
			Verifier:    verifier,
			TTL:         cfg.Contexts.TTL,
			MaxContexts: cfg.Contexts.MaxContexts,
			HashKey:     hashKey,
			BlockKey:    blockKey,
			Secure:      cfg.Contexts.Secure,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create browser registry: %w", err)
		}
		defer registry.Close()
		go registry.RunJanitor(ctx, sessionJanitorInterval, sessionMaxAge)

		var relyingParty *auth.RelyingParty
		if cfg.Federated != nil {
			relyingParty, err = auth.NewRelyingParty(ctx, cfg.Federated, auth.RelyingPartyOptions{
				HashKey:  hashKey,
				BlockKey: blockKey,
				Secure:   cfg.Contexts.Secure,
			})
			if err != nil {
				return fmt.Errorf("failed to create relying party: %w", err)
			}
			logger.Info("federated sign-in enabled", "issuer", cfg.Federated.Issuer)
		}

		feed := scores.NewFeed()
		defer feed.Close()

		analyzer := analysis.NewClient(cfg.Analysis,
			analysis.WithLogger(logger),
			analysis.WithMetrics(analysisMetrics),
		)

		corsOpts := server.DefaultCORSOptions()
		corsOpts.AllowedOrigins = append(corsOpts.AllowedOrigins, cfg.ServerURL)

		handler := server.NewHandler(server.RouterOptions{
			Registry:       registry,
			Analyzer:       analyzer,
			Scores:         scores.NewService(scoreRepo, feed, logger),
			Feed:           feed,
			RelyingParty:   relyingParty,
			LoginFlow:      loginflow.New(logger, authMetrics),
			ResolveTimeout: cfg.Contexts.ResolveTimeout,
			Metrics:        serverMetrics,
			CORSOptions:    &corsOpts,
			HealthHandler:  healthHandler(db.PingContext, registry, relyingParty != nil),
			Logger:         logger,
		})

		// WriteTimeout is cleared per request by the score stream.
		srv := &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr, "url", cfg.ServerURL)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down gracefully", "signal", sig.String())

			// Closing the feed ends open score streams so Shutdown can drain.
			feed.Close()

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

type healthStatus struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Contexts  int    `json:"contexts"`
	Federated bool   `json:"federated"`
}

func healthHandler(ping func(context.Context) error, registry *browser.Registry, federated bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := healthStatus{Status: "ok", Database: "ok", Contexts: registry.Len(), Federated: federated}
		code := http.StatusOK
		if err := ping(ctx); err != nil {
			status.Status, status.Database = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")
	rootCmd.AddCommand(serveCmd)
}
