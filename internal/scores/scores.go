// Package scores records analysis outcomes and serves them to the admin
// dashboard, including a live feed of newly recorded scores.
package scores

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/repository"
	"github.com/KevinAiCloud/InterviewAI/internal/telemetry"
)

// Entry is a score to record for a candidate.
type Entry struct {
	UID     string
	Email   string
	Type    string
	Score   float64
	Details map[string]any
}

// Service stores and lists scores.
type Service struct {
	repo   repository.ScoreRepository
	feed   *Feed
	logger *slog.Logger
}

// NewService creates a Service. feed may be nil when nothing streams scores.
func NewService(repo repository.ScoreRepository, feed *Feed, logger *slog.Logger) *Service {
	return &Service{repo: repo, feed: feed, logger: logging.OrDiscard(logger)}
}

// Record stores e. A failed write is logged and otherwise ignored: the
// candidate's flow continues without the record.
func (s *Service) Record(ctx context.Context, e Entry) {
	ctx, span := telemetry.StartSpan(ctx, "admissions/scores", "scores.Record",
		attribute.String(telemetry.AttrPrincipalID, e.UID),
		attribute.String(telemetry.AttrScoreType, e.Type),
	)
	defer span.End()

	score := &models.Score{
		UID:     e.UID,
		Email:   e.Email,
		Type:    e.Type,
		Score:   e.Score,
		Details: e.Details,
	}
	if err := s.repo.Create(ctx, score); err != nil {
		telemetry.RecordError(span, err)
		logging.Error(ctx, s.logger, "failed to record score", err, "uid", e.UID, "type", e.Type)
		return
	}
	s.logger.InfoContext(ctx, "recorded score", "uid", e.UID, "type", e.Type, "score", e.Score)

	if s.feed != nil {
		s.feed.Publish(*score)
	}
}

// Filter is the admin dashboard's view of the score list.
type Filter struct {
	// Type is "all" or one of the score types
	Type   string
	Search string
}

// ParseType normalises a type filter value to "all" or a known score type.
func ParseType(s string) string {
	switch s {
	case models.ScoreTypeResume, models.ScoreTypeVideo, models.ScoreTypeAssessment:
		return s
	default:
		return "all"
	}
}

// List returns the scores matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Score, error) {
	rf := repository.ScoreFilter{Search: strings.TrimSpace(f.Search)}
	if t := ParseType(f.Type); t != "all" {
		rf.Type = t
	}
	return s.repo.List(ctx, rf)
}

// Matches reports whether score passes f, so streamed scores can be
// filtered the same way as the listed ones.
func (f Filter) Matches(score models.Score) bool {
	if t := ParseType(f.Type); t != "all" && score.Type != t {
		return false
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	return search == "" || strings.Contains(strings.ToLower(score.Email), search)
}
