package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // Total HTTP errors (5xx)
}

// NewServerMetrics creates the HTTP instruments on the global meter provider.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("admissions/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records an HTTP request with method, route, status, and duration.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// AuthMetrics holds metric instruments for sign-in and role resolution.
type AuthMetrics struct {
	SignInAttempts  metric.Int64Counter
	SignInFailures  metric.Int64Counter
	RoleResolutions metric.Int64Counter
}

// NewAuthMetrics creates metric instruments for authentication telemetry.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("admissions/auth")

	attempts, err := meter.Int64Counter(
		"auth.signin.attempt.count",
		metric.WithDescription("Total number of sign-in attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"auth.signin.failure.count",
		metric.WithDescription("Total number of failed sign-in attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter(
		"auth.role.resolution.count",
		metric.WithDescription("Total number of role resolutions"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		SignInAttempts:  attempts,
		SignInFailures:  failures,
		RoleResolutions: resolutions,
	}, nil
}

// RecordSignIn records a sign-in attempt. cause is empty on success.
func (a *AuthMetrics) RecordSignIn(ctx context.Context, method, cause string) {
	attrs := metric.WithAttributes(
		attribute.String(AttrAuthMethod, method),
		attribute.Bool(AttrAuthSuccess, cause == ""),
	)
	a.SignInAttempts.Add(ctx, 1, attrs)
	if cause != "" {
		a.SignInFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrAuthMethod, method),
			attribute.String(AttrAuthFailureCause, cause),
		))
	}
}

// RecordRoleResolution records the outcome of a role lookup.
func (a *AuthMetrics) RecordRoleResolution(ctx context.Context, role string, created, failed bool) {
	a.RoleResolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPrincipalRole, role),
		attribute.Bool("role.created", created),
		attribute.Bool("role.failed", failed),
	))
}

// AnalysisMetrics holds metric instruments for calls to the analysis services.
type AnalysisMetrics struct {
	CallCounter  metric.Int64Counter
	CallDuration metric.Float64Histogram
}

// NewAnalysisMetrics creates metric instruments for analysis service telemetry.
func NewAnalysisMetrics() (*AnalysisMetrics, error) {
	meter := otel.Meter("admissions/analysis")

	calls, err := meter.Int64Counter(
		"analysis.call.count",
		metric.WithDescription("Total number of analysis service calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"analysis.call.duration",
		metric.WithDescription("Analysis service call duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000),
	)
	if err != nil {
		return nil, err
	}

	return &AnalysisMetrics{CallCounter: calls, CallDuration: duration}, nil
}

// RecordCall records one analysis call.
func (a *AnalysisMetrics) RecordCall(ctx context.Context, service string, success bool, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrAnalysisService, service),
		attribute.Bool("analysis.success", success),
	)
	a.CallCounter.Add(ctx, 1, attrs)
	a.CallDuration.Record(ctx, durationMs, attrs)
}

// Common metric attribute keys
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"

	AttrAuthMethod       = "auth.method"
	AttrAuthSuccess      = "auth.success"
	AttrAuthFailureCause = "auth.failure_cause"

	AttrAnalysisService = "analysis.service"
)
