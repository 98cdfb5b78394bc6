package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinAiCloud/InterviewAI/internal/browser"
)

func TestHealthHandler(t *testing.T) {
	registry, err := browser.NewRegistry(browser.Options{})
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	tests := []struct {
		name     string
		ping     func(context.Context) error
		wantCode int
		want     healthStatus
	}{
		{
			name:     "database reachable",
			ping:     func(context.Context) error { return nil },
			wantCode: http.StatusOK,
			want:     healthStatus{Status: "ok", Database: "ok", Federated: true},
		},
		{
			name:     "database down",
			ping:     func(context.Context) error { return errors.New("connection refused") },
			wantCode: http.StatusServiceUnavailable,
			want:     healthStatus{Status: "degraded", Database: "connection refused", Federated: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(tt.ping, registry, true)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got healthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
