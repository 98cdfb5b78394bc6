// Package analysis is the client of the external scoring services: resume
// scoring, video interview scoring and the MCQ assessment generator.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/KevinAiCloud/InterviewAI/internal/config"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/telemetry"
)

// Service names used in errors, logs and metrics.
const (
	ServiceResume     = "resume"
	ServiceVideo      = "video"
	ServiceAssessment = "assessment"
)

// Error codes attached to analysis failures.
const (
	CodeInvalidInput = "ANALYSIS_INVALID_INPUT"
	CodeUnavailable  = "ANALYSIS_UNAVAILABLE"
	CodeRejected     = "ANALYSIS_REJECTED"
	CodeBadResponse  = "ANALYSIS_BAD_RESPONSE"
)

// ServiceError describes a failed analysis call. Retryable failures may
// succeed if the user submits again.
type ServiceError struct {
	Service   string
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s analysis", e.Service)
	if e.Status != 0 {
		fmt.Fprintf(&b, " returned %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a ServiceError worth resubmitting.
func IsRetryable(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Retryable
}

// Upload is one file sent to a service.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Client calls the three analysis services.
type Client struct {
	resumeURL     string
	videoURL      string
	assessmentURL string
	httpClient    *http.Client
	logger        *slog.Logger
	metrics       *telemetry.AnalysisMetrics
}

// ClientOptions configures client construction.
type ClientOptions struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *telemetry.AnalysisMetrics
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithHTTPClient overrides the HTTP client used for service calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// WithMetrics records call counts and latency.
func WithMetrics(metrics *telemetry.AnalysisMetrics) ClientOption {
	return func(opts *ClientOptions) {
		opts.Metrics = metrics
	}
}

// NewClient creates a client for the services configured in cfg. Without an
// explicit HTTP client, calls use an instrumented transport bounded by cfg.Timeout.
func NewClient(cfg config.AnalysisConfig, optFns ...ClientOption) *Client {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		}
	}

	return &Client{
		resumeURL:     strings.TrimRight(cfg.ResumeURL, "/"),
		videoURL:      strings.TrimRight(cfg.VideoURL, "/"),
		assessmentURL: strings.TrimRight(cfg.AssessmentURL, "/"),
		httpClient:    opts.HTTPClient,
		logger:        logging.OrDiscard(opts.Logger),
		metrics:       opts.Metrics,
	}
}

// fastAPIError is the error body of the services: {"detail": "..."}.
type fastAPIError struct {
	Detail any `json:"detail"`
}

func (c *Client) postJSON(ctx context.Context, service, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return oops.Code(CodeInvalidInput).With("service", service).Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return oops.Code(CodeInvalidInput).With("service", service).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, service, out)
}

// postMultipart streams fields and the file through a pipe so large videos
// are never buffered in memory. It returns only after the writer has stopped
// reading file.Body.
func (c *Client) postMultipart(ctx context.Context, service, url string, fields map[string]string, file Upload, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	written := make(chan struct{})
	go func() {
		defer close(written)
		err := writeMultipart(mw, fields, file)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.CloseWithError(err)
		<-written
		return oops.Code(CodeInvalidInput).With("service", service).Wrap(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = c.do(req, service, out)
	pr.Close()
	<-written
	return err
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, file Upload) error {
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.FileName)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file.Body)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) do(req *http.Request, service string, out any) (err error) {
	ctx, span := telemetry.StartSpan(req.Context(), "admissions/analysis", "analysis."+service,
		attribute.String(telemetry.AttrAnalysisService, service),
	)
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordCall(ctx, service, err == nil, float64(time.Since(start).Milliseconds()))
		}
		if err != nil {
			telemetry.RecordError(span, err)
			logging.Error(ctx, c.logger, "analysis call failed", err, "service", service)
		}
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return oops.Code(CodeUnavailable).With("service", service).
			Wrap(&ServiceError{Service: service, Message: "service unreachable", Retryable: true, Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return oops.Code(CodeUnavailable).With("service", service).
			Wrap(&ServiceError{Service: service, Status: resp.StatusCode, Retryable: true, Err: err})
	}

	if resp.StatusCode >= 400 {
		se := &ServiceError{
			Service:   service,
			Status:    resp.StatusCode,
			Message:   errorDetail(body),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
		code := CodeRejected
		if se.Retryable {
			code = CodeUnavailable
		}
		return oops.Code(code).With("service", service).With("status", resp.StatusCode).Wrap(se)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return oops.Code(CodeBadResponse).With("service", service).
			Wrap(&ServiceError{Service: service, Status: resp.StatusCode, Message: "malformed response", Retryable: true, Err: err})
	}
	return nil
}

func errorDetail(body []byte) string {
	var fe fastAPIError
	if err := json.Unmarshal(body, &fe); err == nil && fe.Detail != nil {
		if s, ok := fe.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(fe.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}
