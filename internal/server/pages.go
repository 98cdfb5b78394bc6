package server

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	appmiddleware "github.com/KevinAiCloud/InterviewAI/internal/middleware"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

// browserContext returns the request's browser context. The router installs
// the middleware ahead of every page, so a miss is a wiring error.
func (h *handlers) browserContext(w http.ResponseWriter, r *http.Request) (*browser.Context, bool) {
	bc, ok := appmiddleware.FromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "page without browser context", "path", r.URL.Path)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
	return bc, ok
}

// sessionState returns the snapshot a guarded page was allowed with, or the
// latest snapshot on open pages.
func sessionState(r *http.Request, bc *browser.Context) session.State {
	if state, ok := appmiddleware.SessionFromContext(r.Context()); ok {
		return state
	}
	return bc.Store.Read()
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	page.Federated = h.rp != nil
	if err := h.views.Render(w, status, name, page); err != nil {
		logging.Error(r.Context(), h.logger, "render page", err, "view", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *handlers) home(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "home", Page{Title: "Home", Nav: NavFor(bc.Store.Read(), "home")})
}

func (h *handlers) static(view, title, active string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bc, ok := h.browserContext(w, r)
		if !ok {
			return
		}
		h.render(w, r, http.StatusOK, view, Page{Title: title, Nav: NavFor(bc.Store.Read(), active)})
	}
}

func (h *handlers) pending(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pending", Page{Title: "Loading", Refresh: true})
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	var nav Nav
	if bc, ok := appmiddleware.FromContext(r.Context()); ok {
		nav = NavFor(bc.Store.Read(), "")
	}
	h.render(w, r, http.StatusNotFound, "notfound", Page{Title: "Page not found", Nav: nav})
}

// analysisMessage is the inline message for a failed analysis call. Only
// validation messages are shown verbatim.
func analysisMessage(err error, fallback string) string {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			return e.Error()
		}
	}
	return fallback
}
