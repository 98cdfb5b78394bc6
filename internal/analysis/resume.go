package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"
)

// MaxResumeBytes is the largest resume accepted for scoring.
const MaxResumeBytes = 2 << 20

// ResumeRequest is a resume submitted for scoring.
type ResumeRequest struct {
	File           Upload
	JobDescription string
}

// Validate accepts PDF files up to MaxResumeBytes.
func (r ResumeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.File, validation.By(func(value any) error {
			f := value.(Upload)
			if f.Body == nil || f.FileName == "" {
				return errors.New("Please select a PDF file")
			}
			if !isPDF(f) {
				return errors.New("Only PDF files are accepted")
			}
			if f.Size > MaxResumeBytes {
				return errors.New("File size must be less than 2MB")
			}
			return nil
		})),
		validation.Field(&r.JobDescription, validation.Length(0, 20000)),
	)
}

func isPDF(f Upload) bool {
	if strings.EqualFold(filepath.Ext(f.FileName), ".pdf") {
		return f.ContentType == "" || f.ContentType == "application/pdf" || f.ContentType == "application/octet-stream"
	}
	return false
}

// ResumeResult is the score of a resume against the job description.
type ResumeResult struct {
	// Score is 0 to 10
	Score     float64  `json:"score"`
	Reasoning []string `json:"reasoning"`
}

// AnalyzeResume scores a resume. POST {resume}/analyze multipart(file, job_description).
func (c *Client) AnalyzeResume(ctx context.Context, req ResumeRequest) (*ResumeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, oops.Code(CodeInvalidInput).With("service", ServiceResume).Wrap(err)
	}

	file := req.File
	file.ContentType = "application/pdf"
	fields := map[string]string{"job_description": req.JobDescription}

	var result ResumeResult
	if err := c.postMultipart(ctx, ServiceResume, c.resumeURL+"/analyze", fields, file, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
