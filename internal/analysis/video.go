package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"
)

// VideoExtensions are the container formats the video service accepts.
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

// VideoRequest is an interview recording submitted for scoring.
type VideoRequest struct {
	File Upload
}

// Validate checks the file extension against VideoExtensions.
func (r VideoRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.File, validation.By(func(value any) error {
			f := value.(Upload)
			if f.Body == nil || f.FileName == "" {
				return errors.New("Please select a video file")
			}
			ext := strings.ToLower(filepath.Ext(f.FileName))
			for _, allowed := range VideoExtensions {
				if ext == allowed {
					return nil
				}
			}
			return errors.New("Invalid file type. Allowed: mp4, mov, avi, mkv, webm")
		})),
	)
}

// VideoResult is the outcome of a video interview analysis.
type VideoResult struct {
	IDCardPresent bool    `json:"id_card_present"`
	VideoValid    bool    `json:"video_valid"`
	AudioScore    float64 `json:"audio_score"`
	FinalScore    float64 `json:"final_score"`
	Transcript    string  `json:"transcript"`
	// Error is set when the pipeline ran but could not fully score the video
	Error string `json:"error,omitempty"`
}

// AnalyzeVideo scores a recording. POST {video}/analyze-video multipart(file).
func (c *Client) AnalyzeVideo(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	if err := req.Validate(); err != nil {
		return nil, oops.Code(CodeInvalidInput).With("service", ServiceVideo).Wrap(err)
	}

	var result VideoResult
	if err := c.postMultipart(ctx, ServiceVideo, c.videoURL+"/analyze-video", nil, req.File, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
