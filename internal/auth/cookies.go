package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IntentCookieName holds the navigation intent between a guard denial and a
// successful sign-in.
const IntentCookieName = "admissions.intent"

const intentTTL = 10 * time.Minute

func secureRequest(r *http.Request) bool {
	return r.TLS != nil || r.URL.Scheme == "https" || r.Header.Get("X-Forwarded-Proto") == "https"
}

// SetIntentCookie remembers where the browser was headed when it was sent to
// sign in. Only same-origin paths are stored.
func SetIntentCookie(w http.ResponseWriter, r *http.Request, location string) {
	if !IsLocalPath(location) {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     IntentCookieName,
		Value:    url.QueryEscape(location),
		Path:     "/",
		Expires:  time.Now().Add(intentTTL),
		HttpOnly: true,
		Secure:   secureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// PeekIntentCookie returns the stored intent without consuming it.
func PeekIntentCookie(r *http.Request) string {
	cookie, err := r.Cookie(IntentCookieName)
	if err != nil {
		return ""
	}
	location, err := url.QueryUnescape(cookie.Value)
	if err != nil || !IsLocalPath(location) {
		return ""
	}
	return location
}

// ClearIntentCookie discards the stored intent.
func ClearIntentCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     IntentCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// IsLocalPath reports whether location is an absolute path on this origin.
// Protocol-relative and backslash forms are rejected so an intent can never
// redirect off site.
func IsLocalPath(location string) bool {
	if !strings.HasPrefix(location, "/") || strings.HasPrefix(location, "//") || strings.Contains(location, `\`) {
		return false
	}
	u, err := url.Parse(location)
	return err == nil && u.Scheme == "" && u.Host == ""
}
