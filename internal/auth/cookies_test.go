package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLocalPath(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"/quiz", true},
		{"/admin?type=video", true},
		{"/", true},
		{"", false},
		{"quiz", false},
		{"//evil.example.com/x", false},
		{`/\evil.example.com`, false},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLocalPath(tt.location))
		})
	}
}

func TestIntentCookie_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/quiz", nil)
	SetIntentCookie(rec, req, "/admin?type=video&q=a b")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, IntentCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Secure)

	next := httptest.NewRequest(http.MethodGet, "/login", nil)
	next.AddCookie(cookies[0])
	assert.Equal(t, "/admin?type=video&q=a b", PeekIntentCookie(next))

	clear := httptest.NewRecorder()
	ClearIntentCookie(clear, next)
	cleared := clear.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestIntentCookie_RejectsOffsite(t *testing.T) {
	rec := httptest.NewRecorder()
	SetIntentCookie(rec, httptest.NewRequest(http.MethodGet, "/", nil), "//evil.example.com")
	assert.Empty(t, rec.Result().Cookies())

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: IntentCookieName, Value: "https%3A%2F%2Fevil.example.com"})
	assert.Empty(t, PeekIntentCookie(req))
}

func TestIntentCookie_SecureBehindTLSProxy(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/quiz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	SetIntentCookie(rec, req, "/quiz")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
}
