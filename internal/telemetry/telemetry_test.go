package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/KevinAiCloud/InterviewAI/internal/config"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), config.ObservabilityConfig{}, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_RejectsGRPC(t *testing.T) {
	_, err := Init(context.Background(), config.ObservabilityConfig{
		OTLPEndpoint: "localhost:4317",
		OTLPProtocol: "grpc",
		ServiceName:  "admissions",
	}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OTLP protocol")
}

func TestMetrics_RecordWithNoopProvider(t *testing.T) {
	ctx := context.Background()

	server, err := NewServerMetrics()
	require.NoError(t, err)
	server.RecordRequest(ctx, "GET", "/login", "200", 12.5)
	server.RecordRequest(ctx, "POST", "/resume", "502", 40)

	auth, err := NewAuthMetrics()
	require.NoError(t, err)
	auth.RecordSignIn(ctx, "password", "")
	auth.RecordSignIn(ctx, "password", "bad_credentials")
	auth.RecordRoleResolution(ctx, "user", true, false)

	analysis, err := NewAnalysisMetrics()
	require.NoError(t, err)
	analysis.RecordCall(ctx, "resume", true, 900)
}

func TestRecordError_SetsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	AddEvent(span, "validation.failed", attribute.String("reason", "missing file"))
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "validation.failed", spans[0].Events()[0].Name)
}
