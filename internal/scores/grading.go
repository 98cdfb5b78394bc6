package scores

import (
	"fmt"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
)

// Performance is the grade band of an assessment percentage.
type Performance struct {
	Level   string
	Message string
	// Color names the band's palette in the page styles
	Color string
}

// Grade returns the band for percentage.
func Grade(percentage int) Performance {
	switch {
	case percentage >= 80:
		return Performance{Level: "Excellent", Message: "Outstanding work! You have demonstrated excellent knowledge.", Color: "green"}
	case percentage >= 60:
		return Performance{Level: "Good", Message: "Well done! You have a good grasp of the fundamentals.", Color: "blue"}
	case percentage >= 40:
		return Performance{Level: "Fair", Message: "Keep practicing! You're on the right track.", Color: "yellow"}
	default:
		return Performance{Level: "Needs Improvement", Message: "Don't worry! Every expert was once a beginner.", Color: "red"}
	}
}

// MaxScore is the top of the scale a score type is recorded on.
func MaxScore(scoreType string) float64 {
	if scoreType == models.ScoreTypeAssessment {
		return 100
	}
	return 10
}

// Tier is the dashboard colour of a score: "high" from 70% of the scale,
// "mid" from 40%, otherwise "low".
func Tier(s models.Score) string {
	pct := s.Score / MaxScore(s.Type) * 100
	switch {
	case pct >= 70:
		return "high"
	case pct >= 40:
		return "mid"
	default:
		return "low"
	}
}

// Summary is the dashboard's details column for s.
func Summary(s models.Score) string {
	switch s.Type {
	case models.ScoreTypeResume:
		if name, ok := s.Details["fileName"].(string); ok {
			return name
		}
	case models.ScoreTypeVideo:
		if v, ok := s.Details["audioScore"]; ok {
			return fmt.Sprintf("Audio: %v/10", v)
		}
	case models.ScoreTypeAssessment:
		if v, ok := s.Details["totalQuestions"]; ok {
			return fmt.Sprintf("Total Qs: %v", v)
		}
	}
	return ""
}

// FormatScore renders a score without trailing zeros.
func FormatScore(v float64) string {
	return fmt.Sprintf("%g", v)
}
