package server

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/KevinAiCloud/InterviewAI/internal/analysis"
	"github.com/KevinAiCloud/InterviewAI/internal/browser"
	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/scores"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

// Upload forms: body cap, and the part of a form parsed in memory before
// the multipart parser spills to temporary files.
const (
	maxUploadBytes = 512 << 20
	maxFormMemory  = 8 << 20
)

// ResumeView is the data of the resume page.
type ResumeView struct {
	JobDescription string
	Error          string
	Retryable      bool
	Outcome        *browser.ResumeOutcome
}

// VideoView is the data of the video page.
type VideoView struct {
	Error     string
	Retryable bool
	Result    *analysis.VideoResult
}

func (h *handlers) resumePage(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	state := sessionState(r, bc)
	pages := bc.Pages(state.Principal.ID)
	h.renderResume(w, r, state, http.StatusOK, ResumeView{Outcome: pages.Resume})
}

func (h *handlers) resumeSubmit(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	state := sessionState(r, bc)

	upload, closeFile, err := formUpload(w, r)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		h.renderResume(w, r, state, http.StatusBadRequest, ResumeView{Error: "Could not read the uploaded file."})
		return
	}
	defer closeFile()

	req := analysis.ResumeRequest{File: upload, JobDescription: r.FormValue("job_description")}
	view := ResumeView{JobDescription: req.JobDescription}
	if err := req.Validate(); err != nil {
		view.Error = analysisMessage(err, "Please select a PDF file")
		h.renderResume(w, r, state, http.StatusBadRequest, view)
		return
	}

	result, err := h.analyzer.AnalyzeResume(r.Context(), req)
	if err != nil {
		view.Error = analysisMessage(err, "Failed to analyze resume.")
		view.Retryable = analysis.IsRetryable(err)
		h.renderResume(w, r, state, http.StatusBadGateway, view)
		return
	}

	h.scores.Record(r.Context(), scores.Entry{
		UID:   state.Principal.ID,
		Email: state.Principal.Email,
		Type:  models.ScoreTypeResume,
		Score: result.Score,
		Details: map[string]any{
			"fileName":  upload.FileName,
			"reasoning": result.Reasoning,
		},
	})

	outcome := &browser.ResumeOutcome{FileName: upload.FileName, Result: *result}
	bc.UpdatePages(state.Principal.ID, func(p *browser.PageState) { p.Resume = outcome })
	view.Outcome = outcome
	h.renderResume(w, r, state, http.StatusOK, view)
}

func (h *handlers) renderResume(w http.ResponseWriter, r *http.Request, state session.State, status int, view ResumeView) {
	h.render(w, r, status, "resume", Page{Title: "Resume", Nav: NavFor(state, "apply"), Data: view})
}

func (h *handlers) videoPage(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	state := sessionState(r, bc)
	pages := bc.Pages(state.Principal.ID)
	h.renderVideo(w, r, state, http.StatusOK, VideoView{Result: pages.Video})
}

func (h *handlers) videoSubmit(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	state := sessionState(r, bc)

	upload, closeFile, err := formUpload(w, r)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		h.renderVideo(w, r, state, http.StatusBadRequest, VideoView{Error: "Could not read the uploaded file."})
		return
	}
	defer closeFile()

	req := analysis.VideoRequest{File: upload}
	if err := req.Validate(); err != nil {
		h.renderVideo(w, r, state, http.StatusBadRequest, VideoView{Error: analysisMessage(err, "Please select a video file")})
		return
	}

	result, err := h.analyzer.AnalyzeVideo(r.Context(), req)
	if err != nil {
		h.renderVideo(w, r, state, http.StatusBadGateway, VideoView{
			Error:     analysisMessage(err, "Failed to analyze video."),
			Retryable: analysis.IsRetryable(err),
		})
		return
	}

	// A result carrying an error is shown but not scored.
	if result.Error == "" {
		h.scores.Record(r.Context(), scores.Entry{
			UID:   state.Principal.ID,
			Email: state.Principal.Email,
			Type:  models.ScoreTypeVideo,
			Score: result.FinalScore,
			Details: map[string]any{
				"audioScore":    result.AudioScore,
				"idCardPresent": result.IDCardPresent,
				"videoValid":    result.VideoValid,
				"transcript":    result.Transcript,
			},
		})
	}

	bc.UpdatePages(state.Principal.ID, func(p *browser.PageState) { p.Video = result })
	h.renderVideo(w, r, state, http.StatusOK, VideoView{Result: result})
}

func (h *handlers) renderVideo(w http.ResponseWriter, r *http.Request, state session.State, status int, view VideoView) {
	h.render(w, r, status, "video", Page{Title: "Video interview", Nav: NavFor(state, "apply"), Data: view})
}

// formUpload reads the "file" part of a multipart form. The returned close
// function is always safe to call.
func formUpload(w http.ResponseWriter, r *http.Request) (analysis.Upload, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return analysis.Upload{}, noop, http.ErrMissingFile
		}
		return analysis.Upload{}, noop, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return analysis.Upload{}, noop, err
	}
	return uploadFrom(file, header), func() { _ = file.Close() }, nil
}

func uploadFrom(file multipart.File, header *multipart.FileHeader) analysis.Upload {
	return analysis.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}
