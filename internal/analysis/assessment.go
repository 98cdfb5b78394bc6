package analysis

import (
	"context"
	"math"
	"strconv"

	"github.com/samber/oops"
)

// OptionLabels are the answer letters of a question's options, in order.
var OptionLabels = []string{"A", "B", "C", "D"}

// Question is one MCQ question. The correct option stays with the service.
type Question struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Assessment is a started assessment session.
type Assessment struct {
	SessionID string     `json:"session_id"`
	Questions []Question `json:"questions"`
}

// AssessmentResult is the graded submission.
type AssessmentResult struct {
	Score          int `json:"score"`
	TotalQuestions int `json:"total_questions"`
	CorrectAnswers int `json:"correct_answers"`
}

// Correct returns the number of correct answers. Older service versions
// report it only as the score.
func (r AssessmentResult) Correct() int {
	if r.CorrectAnswers > 0 {
		return r.CorrectAnswers
	}
	return r.Score
}

// Percentage returns the share of correct answers, rounded to a whole percent.
func (r AssessmentResult) Percentage() int {
	if r.TotalQuestions <= 0 {
		return 0
	}
	return int(math.Round(float64(r.Correct()) / float64(r.TotalQuestions) * 100))
}

type startRequest struct {
	JobDescription *string `json:"job_description"`
}

type submitRequest struct {
	SessionID string            `json:"session_id"`
	Answers   map[string]string `json:"answers"`
}

// StartAssessment generates a question set, tailored to jobDescription when
// it is not empty. POST {assessment}/start.
func (c *Client) StartAssessment(ctx context.Context, jobDescription string) (*Assessment, error) {
	req := startRequest{}
	if jobDescription != "" {
		req.JobDescription = &jobDescription
	}

	var a Assessment
	if err := c.postJSON(ctx, ServiceAssessment, c.assessmentURL+"/start", req, &a); err != nil {
		return nil, err
	}
	if a.SessionID == "" || len(a.Questions) == 0 {
		return nil, oops.Code(CodeBadResponse).With("service", ServiceAssessment).
			Wrap(&ServiceError{Service: ServiceAssessment, Message: "no questions generated", Retryable: true})
	}
	return &a, nil
}

// SubmitAssessment grades answers, keyed by question ID with values from
// OptionLabels. POST {assessment}/submit.
func (c *Client) SubmitAssessment(ctx context.Context, sessionID string, answers map[int]string) (*AssessmentResult, error) {
	if sessionID == "" {
		return nil, oops.Code(CodeInvalidInput).With("service", ServiceAssessment).Errorf("assessment session is required")
	}

	wire := make(map[string]string, len(answers))
	for id, label := range answers {
		wire[strconv.Itoa(id)] = label
	}

	var result AssessmentResult
	if err := c.postJSON(ctx, ServiceAssessment, c.assessmentURL+"/submit", submitRequest{SessionID: sessionID, Answers: wire}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
