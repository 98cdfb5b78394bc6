package server

import (
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/KevinAiCloud/InterviewAI/internal/analysis"
	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/scores"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

// Quiz form actions. Any other action saves the answers.
const (
	quizActionStart  = "start"
	quizActionSubmit = "submit"
)

const answerFieldPrefix = "q_"

// MsgAnswerAll is shown while a quiz has unanswered questions.
const MsgAnswerAll = "Please answer all questions to enable submission"

// QuizView is the data of the quiz page.
type QuizView struct {
	Draft     *browser.QuizDraft
	Complete  bool
	Hint      string
	Error     string
	Retryable bool
}

// ResultView is the data of the result page.
type ResultView struct {
	Outcome browser.AssessmentOutcome
	Grade   scores.Performance
}

// defaultOutcome is shown on the result page before any assessment is graded.
var defaultOutcome = browser.AssessmentOutcome{Correct: 4, Total: 5, Percentage: 80}

func (h *handlers) quizPage(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	state := sessionState(r, bc)
	pages := bc.Pages(state.Principal.ID)
	h.renderQuiz(w, r, state, http.StatusOK, QuizView{Draft: pages.Quiz, Complete: pages.Quiz.Complete()})
}

func (h *handlers) quizSubmit(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	state := sessionState(r, bc)
	owner := state.Principal.ID

	switch r.PostFormValue("action") {
	case quizActionStart:
		jd := strings.TrimSpace(r.PostFormValue("job_description"))
		assessment, err := h.analyzer.StartAssessment(r.Context(), jd)
		if err != nil {
			h.renderQuiz(w, r, state, http.StatusBadGateway, QuizView{
				Error:     analysisMessage(err, "Failed to start the assessment."),
				Retryable: analysis.IsRetryable(err),
			})
			return
		}
		bc.UpdatePages(owner, func(p *browser.PageState) {
			p.Quiz = &browser.QuizDraft{Assessment: assessment, JobDescription: jd, Answers: map[int]string{}}
		})
		http.Redirect(w, r, "/quiz", http.StatusSeeOther)

	case quizActionSubmit:
		var draft *browser.QuizDraft
		bc.UpdatePages(owner, func(p *browser.PageState) {
			if p.Quiz != nil {
				mergeAnswers(p.Quiz, r)
				copied := *p.Quiz
				copied.Answers = maps.Clone(p.Quiz.Answers)
				draft = &copied
			}
		})
		if draft == nil {
			http.Redirect(w, r, "/quiz", http.StatusSeeOther)
			return
		}
		if !draft.Complete() {
			h.renderQuiz(w, r, state, http.StatusUnprocessableEntity, QuizView{Draft: draft})
			return
		}
		h.gradeQuiz(w, r, bc, state, draft)

	default:
		bc.UpdatePages(owner, func(p *browser.PageState) {
			if p.Quiz != nil {
				mergeAnswers(p.Quiz, r)
			}
		})
		http.Redirect(w, r, "/quiz", http.StatusSeeOther)
	}
}

func (h *handlers) gradeQuiz(w http.ResponseWriter, r *http.Request, bc *browser.Context, state session.State, draft *browser.QuizDraft) {
	result, err := h.analyzer.SubmitAssessment(r.Context(), draft.Assessment.SessionID, draft.Answers)
	if err != nil {
		h.renderQuiz(w, r, state, http.StatusBadGateway, QuizView{
			Draft:     draft,
			Complete:  true,
			Error:     analysisMessage(err, "Failed to submit the assessment."),
			Retryable: analysis.IsRetryable(err),
		})
		return
	}

	outcome := &browser.AssessmentOutcome{
		Correct:    result.Correct(),
		Total:      result.TotalQuestions,
		Percentage: result.Percentage(),
	}
	h.scores.Record(r.Context(), scores.Entry{
		UID:   state.Principal.ID,
		Email: state.Principal.Email,
		Type:  models.ScoreTypeAssessment,
		Score: float64(outcome.Percentage),
		Details: map[string]any{
			"correct":        outcome.Correct,
			"totalQuestions": outcome.Total,
		},
	})

	bc.UpdatePages(state.Principal.ID, func(p *browser.PageState) {
		p.Assessment = outcome
		p.Quiz = nil
	})
	http.Redirect(w, r, "/result", http.StatusSeeOther)
}

func (h *handlers) renderQuiz(w http.ResponseWriter, r *http.Request, state session.State, status int, view QuizView) {
	if view.Draft != nil && !view.Complete {
		view.Hint = MsgAnswerAll
	}
	h.render(w, r, status, "quiz", Page{Title: "Assessment", Nav: NavFor(state, "apply"), Data: view})
}

func (h *handlers) resultPage(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	state := sessionState(r, bc)
	outcome := defaultOutcome
	if held := bc.Pages(state.Principal.ID).Assessment; held != nil {
		outcome = *held
	}
	h.render(w, r, http.StatusOK, "result", Page{
		Title: "Result",
		Nav:   NavFor(state, "apply"),
		Data:  ResultView{Outcome: outcome, Grade: scores.Grade(outcome.Percentage)},
	})
}

// keepQuizAnswers saves the answers of a quiz POST that was sent to sign in,
// so they are still selected when the browser returns to the quiz.
func keepQuizAnswers(_ http.ResponseWriter, r *http.Request, bc *browser.Context) {
	if r.Method != http.MethodPost || r.URL.Path != "/quiz" {
		return
	}
	if err := r.ParseForm(); err != nil {
		return
	}
	bc.UpdateDraft(func(d *browser.QuizDraft) { mergeAnswers(d, r) })
}

// mergeAnswers copies valid q_<id>=<label> fields of a parsed form into d.
func mergeAnswers(d *browser.QuizDraft, r *http.Request) {
	if d.Assessment == nil {
		return
	}
	if d.Answers == nil {
		d.Answers = map[int]string{}
	}
	for key, values := range r.PostForm {
		idText, ok := strings.CutPrefix(key, answerFieldPrefix)
		if !ok || len(values) == 0 {
			continue
		}
		id, err := strconv.Atoi(idText)
		if err != nil || !hasQuestion(d.Assessment, id) {
			continue
		}
		if label := values[len(values)-1]; slices.Contains(analysis.OptionLabels, label) {
			d.Answers[id] = label
		}
	}
}

func hasQuestion(a *analysis.Assessment, id int) bool {
	return slices.ContainsFunc(a.Questions, func(q analysis.Question) bool { return q.ID == id })
}
