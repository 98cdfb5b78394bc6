package browser

import (
	"maps"

	"github.com/KevinAiCloud/InterviewAI/internal/analysis"
)

// QuizDraft is an assessment in progress.
type QuizDraft struct {
	Assessment     *analysis.Assessment
	JobDescription string
	// Answers maps question ID to an option label
	Answers map[int]string
}

// Complete reports whether every question has an answer.
func (d *QuizDraft) Complete() bool {
	if d == nil || d.Assessment == nil || len(d.Assessment.Questions) == 0 {
		return false
	}
	for _, q := range d.Assessment.Questions {
		if _, ok := d.Answers[q.ID]; !ok {
			return false
		}
	}
	return true
}

// ResumeOutcome is the last scored resume.
type ResumeOutcome struct {
	FileName string
	Result   analysis.ResumeResult
}

// AssessmentOutcome is the last graded assessment.
type AssessmentOutcome struct {
	Correct    int
	Total      int
	Percentage int
}

// PageState is the page-local state of a browser context. It belongs to
// the principal that created it and is dropped when another one signs in.
type PageState struct {
	Owner      string
	Quiz       *QuizDraft
	Resume     *ResumeOutcome
	Video      *analysis.VideoResult
	Assessment *AssessmentOutcome
}

func (p PageState) clone() PageState {
	out := p
	if p.Quiz != nil {
		q := *p.Quiz
		q.Answers = maps.Clone(p.Quiz.Answers)
		out.Quiz = &q
	}
	return out
}
