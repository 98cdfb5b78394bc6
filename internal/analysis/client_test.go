package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinAiCloud/InterviewAI/internal/config"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(config.AnalysisConfig{
		ResumeURL:     srv.URL + "/resume/",
		VideoURL:      srv.URL + "/video",
		AssessmentURL: srv.URL + "/assessment",
	}, WithHTTPClient(srv.Client()))
}

func codeOf(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		code, _ := oopsErr.Code().(string)
		return code
	}
	return ""
}

func pdfUpload(content string) Upload {
	return Upload{FileName: "cv.pdf", ContentType: "application/pdf", Size: int64(len(content)), Body: strings.NewReader(content)}
}

func TestAnalyzeResume(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /resume/analyze", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Go engineer", r.FormValue("job_description"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "cv.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "%PDF-1.4 resume", string(data))

		json.NewEncoder(w).Encode(map[string]any{"score": 8, "reasoning": []string{"strong match"}})
	})
	c := newTestClient(t, mux)

	result, err := c.AnalyzeResume(context.Background(), ResumeRequest{
		File:           pdfUpload("%PDF-1.4 resume"),
		JobDescription: "Go engineer",
	})
	require.NoError(t, err)
	assert.Equal(t, 8.0, result.Score)
	assert.Equal(t, []string{"strong match"}, result.Reasoning)
}

func TestResumeRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		file    Upload
		wantErr string
	}{
		{"no file", Upload{}, "Please select a PDF file"},
		{"not a pdf", Upload{FileName: "cv.docx", Body: strings.NewReader("x")}, "Only PDF files are accepted"},
		{"pdf name but other type", Upload{FileName: "cv.pdf", ContentType: "image/png", Body: strings.NewReader("x")}, "Only PDF files are accepted"},
		{"too large", Upload{FileName: "cv.pdf", ContentType: "application/pdf", Size: MaxResumeBytes + 1, Body: strings.NewReader("x")}, "File size must be less than 2MB"},
		{"ok", pdfUpload("x"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ResumeRequest{File: tt.file}.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAnalyzeResume_InvalidInputNeverCallsService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	c := newTestClient(t, mux)

	_, err := c.AnalyzeResume(context.Background(), ResumeRequest{File: Upload{FileName: "cv.txt", Body: strings.NewReader("x")}})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, codeOf(err))
	assert.False(t, IsRetryable(err))
}

func TestAnalyzeVideo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /video/analyze-video", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		file.Close()
		assert.Equal(t, "answer.webm", header.Filename)
		json.NewEncoder(w).Encode(map[string]any{
			"id_card_present": true,
			"video_valid":     true,
			"audio_score":     7.5,
			"final_score":     8,
			"transcript":      "hello",
		})
	})
	c := newTestClient(t, mux)

	result, err := c.AnalyzeVideo(context.Background(), VideoRequest{
		File: Upload{FileName: "answer.webm", ContentType: "video/webm", Body: strings.NewReader("webm")},
	})
	require.NoError(t, err)
	assert.True(t, result.IDCardPresent)
	assert.True(t, result.VideoValid)
	assert.Equal(t, 7.5, result.AudioScore)
	assert.Equal(t, 8.0, result.FinalScore)
	assert.Equal(t, "hello", result.Transcript)
}

func TestVideoRequest_Validate(t *testing.T) {
	for _, name := range []string{"a.mp4", "a.MOV", "a.avi", "a.mkv", "a.webm"} {
		assert.NoError(t, VideoRequest{File: Upload{FileName: name, Body: strings.NewReader("x")}}.Validate(), name)
	}
	assert.Error(t, VideoRequest{File: Upload{FileName: "a.gif", Body: strings.NewReader("x")}}.Validate())
	assert.Error(t, VideoRequest{}.Validate())
}

func TestAssessment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assessment/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Data analyst", body["job_description"])
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "sess-1",
			"questions": []map[string]any{
				{"id": 0, "question": "Q1", "options": []string{"a", "b", "c", "d"}},
				{"id": 1, "question": "Q2", "options": []string{"a", "b", "c", "d"}},
			},
		})
	})
	mux.HandleFunc("POST /assessment/submit", func(w http.ResponseWriter, r *http.Request) {
		var body submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sess-1", body.SessionID)
		assert.Equal(t, map[string]string{"0": "A", "1": "C"}, body.Answers)
		json.NewEncoder(w).Encode(map[string]any{"score": 1, "total_questions": 2, "correct_answers": 1})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	a, err := c.StartAssessment(ctx, "Data analyst")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", a.SessionID)
	require.Len(t, a.Questions, 2)
	assert.Equal(t, 1, a.Questions[1].ID)

	result, err := c.SubmitAssessment(ctx, a.SessionID, map[int]string{0: "A", 1: "C"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Correct())
	assert.Equal(t, 50, result.Percentage())
}

func TestStartAssessment_NullJobDescription(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assessment/start", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"job_description": null}`, string(data))
		json.NewEncoder(w).Encode(map[string]any{"session_id": "s", "questions": []map[string]any{}})
	})
	c := newTestClient(t, mux)

	_, err := c.StartAssessment(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, CodeBadResponse, codeOf(err))
	assert.True(t, IsRetryable(err))
}

func TestAssessmentResult_Percentage(t *testing.T) {
	assert.Equal(t, 80, AssessmentResult{Score: 4, TotalQuestions: 5}.Percentage())
	assert.Equal(t, 67, AssessmentResult{CorrectAnswers: 2, Score: 2, TotalQuestions: 3}.Percentage())
	assert.Equal(t, 0, AssessmentResult{}.Percentage())
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  string
		retryable bool
		message   string
	}{
		{"service failure", http.StatusInternalServerError, `{"detail": "model overloaded"}`, CodeUnavailable, true, "model overloaded"},
		{"rejected input", http.StatusBadRequest, `{"detail": "Invalid file type. Only PDF is supported."}`, CodeRejected, false, "Only PDF is supported"},
		{"expired session", http.StatusNotFound, `{"detail": "Session not found or expired."}`, CodeRejected, false, "Session not found"},
		{"validation detail", http.StatusUnprocessableEntity, `{"detail": [{"loc": ["body"], "msg": "field required"}]}`, CodeRejected, false, "field required"},
		{"malformed success", http.StatusOK, `not json`, CodeBadResponse, true, "malformed response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /assessment/submit", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			c := newTestClient(t, mux)

			_, err := c.SubmitAssessment(context.Background(), "sess-1", map[int]string{0: "A"})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, codeOf(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))

			var se *ServiceError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, ServiceAssessment, se.Service)
			assert.Contains(t, se.Error(), tt.message)
		})
	}
}

func TestUnreachableServiceIsRetryable(t *testing.T) {
	c := NewClient(config.AnalysisConfig{ResumeURL: "http://127.0.0.1:1"})
	_, err := c.AnalyzeResume(context.Background(), ResumeRequest{File: pdfUpload("%PDF")})
	require.Error(t, err)
	assert.Equal(t, CodeUnavailable, codeOf(err))
	assert.True(t, IsRetryable(err))
}

// endlessBody counts reads made after done is set.
type endlessBody struct {
	done      atomic.Bool
	lateReads atomic.Int32
}

func (b *endlessBody) Read(p []byte) (int, error) {
	if b.done.Load() {
		b.lateReads.Add(1)
	}
	time.Sleep(time.Millisecond)
	return copy(p, strings.Repeat("v", len(p))), nil
}

func TestAnalyzeVideo_StopsReadingUploadBeforeReturning(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /video/analyze-video", func(w http.ResponseWriter, r *http.Request) {
		// Answer without draining the upload.
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		json.NewEncoder(w).Encode(map[string]string{"detail": "too large"})
	})
	c := newTestClient(t, mux)

	body := &endlessBody{}
	_, err := c.AnalyzeVideo(context.Background(), VideoRequest{File: Upload{FileName: "intro.mp4", Body: body}})
	require.Error(t, err)
	body.done.Store(true)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, body.lateReads.Load(), "the upload was read after AnalyzeVideo returned")
}
