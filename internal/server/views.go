package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/KevinAiCloud/InterviewAI/internal/analysis"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/scores"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

//go:embed views/*.html
var viewFS embed.FS

var pageNames = []string{
	"home", "pep", "hope", "login", "resume", "video", "quiz", "result", "admin", "notfound", "pending",
}

// Nav is the navbar state of a page.
type Nav struct {
	Active   string
	SignedIn bool
	Admin    bool
	Email    string
}

// NavFor builds the navbar for a session snapshot. The Admin link only
// shows for a resolved admin role.
func NavFor(state session.State, active string) Nav {
	nav := Nav{Active: active}
	if state.Resolved && state.Principal != nil {
		nav.SignedIn = true
		nav.Email = state.Principal.Email
		nav.Admin = state.Role == roles.Admin
	}
	return nav
}

// Page is the data passed to the layout template.
type Page struct {
	Title     string
	Nav       Nav
	Refresh   bool
	Federated bool
	Data      any
}

// Views renders the embedded page templates.
type Views struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"formatScore": scores.FormatScore,
	"add":         func(a, b int) int { return a + b },
	"optionLabel": func(i int) string {
		if i >= 0 && i < len(analysis.OptionLabels) {
			return analysis.OptionLabels[i]
		}
		return fmt.Sprintf("%d", i+1)
	},
}

// LoadViews parses the layout together with every page template.
func LoadViews() (*Views, error) {
	v := &Views{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout").Funcs(funcs).ParseFS(viewFS, "views/layout.html", "views/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse view %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// MustLoadViews is LoadViews for package initialisation; the templates are embedded.
func MustLoadViews() *Views {
	v, err := LoadViews()
	if err != nil {
		panic(err)
	}
	return v
}

// Render executes page name into a buffer and writes it with status, so a
// template error never leaves a half-written page.
func (v *Views) Render(w http.ResponseWriter, status int, name string, page Page) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown view %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("render view %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
