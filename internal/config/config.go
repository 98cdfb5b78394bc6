package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the server reads.
const EnvPrefix = "ADMISSIONS"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). SQLite and PostgreSQL are detected from the scheme.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Public base URL, used to build absolute redirect targets
	ServerURL string

	// Maximum database connection pool size (ignored for SQLite)
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	// LogFormat is "json" or "text"
	LogFormat string

	// Browser context registry and cookie settings
	Contexts ContextConfig

	// Identity Toolkit credentials for email/password and federated sign-in
	Identity IdentityConfig

	// Federated (Google) sign-in through an OIDC relying party.
	// Nil when federated sign-in is not configured.
	Federated *FederatedConfig

	// External analysis services
	Analysis AnalysisConfig

	// AdminEmails are granted the admin role when their user record is first created
	AdminEmails []string

	// OpenTelemetry export settings
	Observability ObservabilityConfig
}

// ContextConfig controls how browser contexts are tracked server side.
type ContextConfig struct {
	// TTL is the idle lifetime of a browser context before it is evicted
	TTL time.Duration

	// MaxContexts caps the number of live browser contexts
	MaxContexts int

	// ResolveTimeout bounds how long a request waits for the session to resolve
	// before rendering the pending view
	ResolveTimeout time.Duration

	// HashKey and BlockKey authenticate and encrypt the context cookie.
	// BlockKey may be empty to disable encryption.
	HashKey  string
	BlockKey string

	// Secure marks cookies as HTTPS-only
	Secure bool
}

// IdentityConfig configures the Identity Toolkit REST client.
type IdentityConfig struct {
	APIKey   string
	BaseURL  string // accounts API, e.g. https://identitytoolkit.googleapis.com/v1
	TokenURL string // secure token API, e.g. https://securetoken.googleapis.com/v1/token

	// ProjectID is the audience of issued ID tokens; empty disables verification
	ProjectID string
	Issuer    string // defaults to https://securetoken.google.com/<ProjectID>
}

// FederatedConfig holds the Google OIDC client used for federated sign-in
type FederatedConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// AnalysisConfig holds the base URLs of the analysis services.
type AnalysisConfig struct {
	ResumeURL     string
	VideoURL      string
	AssessmentURL string
	Timeout       time.Duration
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPProtocol   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func setDefaults() {
	viper.SetDefault("database_url", "file:admissions.db?cache=shared")
	viper.SetDefault("server_addr", "localhost:8080")
	viper.SetDefault("server_url", "http://localhost:8080")
	viper.SetDefault("max_db_connections", 25)
	viper.SetDefault("debug", false)
	viper.SetDefault("log_format", "json")

	viper.SetDefault("contexts.ttl", "30m")
	viper.SetDefault("contexts.max", 10000)
	viper.SetDefault("contexts.resolve_timeout", "2s")
	viper.SetDefault("contexts.secure", false)

	viper.SetDefault("identity.base_url", "https://identitytoolkit.googleapis.com/v1")
	viper.SetDefault("identity.token_url", "https://securetoken.googleapis.com/v1/token")

	viper.SetDefault("federated.issuer", "https://accounts.google.com")

	viper.SetDefault("analysis.resume_url", "http://localhost:8000")
	viper.SetDefault("analysis.video_url", "http://localhost:8002")
	viper.SetDefault("analysis.assessment_url", "http://localhost:8001")
	viper.SetDefault("analysis.timeout", "120s")

	viper.SetDefault("otel.protocol", "http/protobuf")
	viper.SetDefault("otel.service_name", "admissions")
	viper.SetDefault("otel.environment", "development")
}

// Load reads configuration from the active viper instance. Values come from
// defaults, an optional config file already read by the caller, and
// ADMISSIONS_ prefixed environment variables, in increasing precedence.
func Load() (*Config, error) {
	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg := &Config{
		DatabaseURL:      viper.GetString("database_url"),
		ServerAddr:       viper.GetString("server_addr"),
		ServerURL:        strings.TrimRight(viper.GetString("server_url"), "/"),
		MaxDBConnections: viper.GetInt("max_db_connections"),
		Debug:            viper.GetBool("debug"),
		LogFormat:        viper.GetString("log_format"),
		Contexts: ContextConfig{
			TTL:            viper.GetDuration("contexts.ttl"),
			MaxContexts:    viper.GetInt("contexts.max"),
			ResolveTimeout: viper.GetDuration("contexts.resolve_timeout"),
			HashKey:        viper.GetString("contexts.hash_key"),
			BlockKey:       viper.GetString("contexts.block_key"),
			Secure:         viper.GetBool("contexts.secure"),
		},
		Identity: IdentityConfig{
			APIKey:    viper.GetString("identity.api_key"),
			BaseURL:   strings.TrimRight(viper.GetString("identity.base_url"), "/"),
			TokenURL:  viper.GetString("identity.token_url"),
			ProjectID: viper.GetString("identity.project_id"),
			Issuer:    viper.GetString("identity.issuer"),
		},
		Federated: loadFederatedConfig(),
		Analysis: AnalysisConfig{
			ResumeURL:     strings.TrimRight(viper.GetString("analysis.resume_url"), "/"),
			VideoURL:      strings.TrimRight(viper.GetString("analysis.video_url"), "/"),
			AssessmentURL: strings.TrimRight(viper.GetString("analysis.assessment_url"), "/"),
			Timeout:       viper.GetDuration("analysis.timeout"),
		},
		AdminEmails: getList("admin_emails"),
		Observability: ObservabilityConfig{
			OTLPEndpoint:   viper.GetString("otel.endpoint"),
			OTLPProtocol:   viper.GetString("otel.protocol"),
			OTLPInsecure:   viper.GetBool("otel.insecure"),
			ServiceName:    viper.GetString("otel.service_name"),
			ServiceVersion: viper.GetString("otel.service_version"),
			Environment:    viper.GetString("otel.environment"),
		},
	}

	if cfg.Identity.Issuer == "" && cfg.Identity.ProjectID != "" {
		cfg.Identity.Issuer = "https://securetoken.google.com/" + cfg.Identity.ProjectID
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required")
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}
	if cfg.Contexts.TTL <= 0 {
		return nil, fmt.Errorf("contexts.ttl must be positive")
	}
	if cfg.Contexts.MaxContexts <= 0 {
		return nil, fmt.Errorf("contexts.max must be positive")
	}
	if cfg.Contexts.ResolveTimeout < 0 {
		return nil, fmt.Errorf("contexts.resolve_timeout must not be negative")
	}
	if n := len(cfg.Contexts.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("contexts.block_key must be 16, 24 or 32 bytes, got %d", n)
	}

	if fed := cfg.Federated; fed != nil {
		if fed.ClientSecret == "" {
			return nil, fmt.Errorf("federated.client_secret is required when federated.client_id is set")
		}
		if fed.RedirectURI == "" {
			fed.RedirectURI = cfg.ServerURL + "/auth/federated/callback"
		}
	}

	return cfg, nil
}

// HasIdentityProvider reports whether credential sign-in can reach a provider.
func (c *Config) HasIdentityProvider() bool {
	return c.Identity.APIKey != ""
}

// loadFederatedConfig returns nil if federated sign-in is not configured
func loadFederatedConfig() *FederatedConfig {
	clientID := viper.GetString("federated.client_id")
	if clientID == "" {
		return nil
	}

	scopes := getList("federated.scopes")
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}

	return &FederatedConfig{
		Issuer:       viper.GetString("federated.issuer"),
		ClientID:     clientID,
		ClientSecret: viper.GetString("federated.client_secret"),
		RedirectURI:  viper.GetString("federated.redirect_uri"),
		Scopes:       scopes,
	}
}

// getList accepts either a YAML list or a comma separated string.
func getList(key string) []string {
	var out []string
	for _, item := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
