package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/guard"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/scores"
)

// scoreTypes are the options of the dashboard's type filter.
var scoreTypes = []string{"all", models.ScoreTypeResume, models.ScoreTypeVideo, models.ScoreTypeAssessment}

const (
	streamBuffer    = 32
	streamHeartbeat = 25 * time.Second
)

// ScoreRow is one dashboard table row, also sent as a stream event.
type ScoreRow struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Type      string `json:"type"`
	Score     string `json:"score"`
	Tier      string `json:"tier"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
}

// AdminView is the data of the admin dashboard.
type AdminView struct {
	Type      string
	Search    string
	Types     []string
	Rows      []ScoreRow
	StreamURL string
	Error     string
}

func rowFor(s models.Score) ScoreRow {
	score := scores.FormatScore(s.Score) + "/10"
	if s.Type == models.ScoreTypeAssessment {
		score = scores.FormatScore(s.Score) + "%"
	}
	return ScoreRow{
		ID:        s.ID,
		Email:     s.Email,
		Type:      s.Type,
		Score:     score,
		Tier:      scores.Tier(s),
		Summary:   scores.Summary(s),
		Timestamp: s.Timestamp.Local().Format("2006-01-02 15:04"),
	}
}

func filterFrom(r *http.Request) scores.Filter {
	q := r.URL.Query()
	return scores.Filter{Type: scores.ParseType(q.Get("type")), Search: strings.TrimSpace(q.Get("q"))}
}

func (h *handlers) adminPage(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	state := sessionState(r, bc)
	filter := filterFrom(r)

	view := AdminView{
		Type:   filter.Type,
		Search: filter.Search,
		Types:  scoreTypes,
		StreamURL: "/admin/scores/stream?" + url.Values{
			"type": {filter.Type},
			"q":    {filter.Search},
		}.Encode(),
	}

	list, err := h.scores.List(r.Context(), filter)
	if err != nil {
		logging.Error(r.Context(), h.logger, "list scores", err)
		view.Error = "Failed to load scores."
	}
	for _, s := range list {
		view.Rows = append(view.Rows, rowFor(s))
	}
	h.render(w, r, http.StatusOK, "admin", Page{Title: "Admin", Nav: NavFor(state, "admin"), Data: view})
}

// scoreStream sends scores recorded after the request as Server-Sent Events,
// filtered like the dashboard, until the client goes away. The admin guard is
// re-evaluated on every session change; once it no longer allows the page the
// stream sends a revoked event and ends.
func (h *handlers) scoreStream(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	filter := filterFrom(r)
	location := r.URL.RequestURI()

	live, cancel := h.feed.Subscribe(streamBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logging.Error(r.Context(), h.logger, "score stream unsupported", err)
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	changed := bc.Store.Changed()
	allowed := func() bool {
		return guard.Evaluate(bc.Store.Read(), location, roles.Admin).Kind == guard.Allow
	}
	// The session may have changed since the guard let the request in.
	if !allowed() {
		h.revokeStream(w, rc)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-bc.Store.Done():
			h.revokeStream(w, rc)
			return
		case <-changed:
			changed = bc.Store.Changed()
			if !allowed() {
				h.revokeStream(w, rc)
				return
			}
			continue
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case s, open := <-live:
			if !open {
				return
			}
			if !filter.Matches(s) {
				continue
			}
			// A change may be pending alongside the score.
			if !allowed() {
				h.revokeStream(w, rc)
				return
			}
			data, err := json.Marshal(rowFor(s))
			if err != nil {
				logging.Error(r.Context(), h.logger, "encode score event", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: score\ndata: %s\n\n", s.ID, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// revokeStream tells the dashboard its session no longer allows the stream.
func (h *handlers) revokeStream(w http.ResponseWriter, rc *http.ResponseController) {
	if _, err := fmt.Fprint(w, "event: revoked\ndata: {}\n\n"); err == nil {
		_ = rc.Flush()
	}
}
