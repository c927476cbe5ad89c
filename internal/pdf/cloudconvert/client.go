// Package cloudconvert converts HTML to PDF through the CloudConvert jobs API.
package cloudconvert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/celemqhele/cvtailorpro/internal/poll"
	"github.com/celemqhele/cvtailorpro/internal/utils"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.cloudconvert.com/v2"
	SandboxBaseURL = "https://api.sandbox.cloudconvert.com/v2"

	contentType  = "application/json"
	userAgent    = "cvtailorpro-bff"
	maxErrorBody = 300
	maxJobBody   = 1 << 20

	// DefaultMaxDownload bounds the size of a fetched artifact.
	DefaultMaxDownload = 20 << 20

	taskImport  = "import-html"
	taskConvert = "convert-pdf"
	taskExport  = "export-pdf"
)

// Job statuses reported by the API.
const (
	StatusWaiting    = "waiting"
	StatusProcessing = "processing"
	StatusFinished   = "finished"
	StatusFailed     = "error"
)

var ErrNoExport = errors.New("finished job has no export url")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status: %s", e.Status)
	}
	return fmt.Sprintf("bad status: %s: %s", e.Status, e.Body)
}

// JobError is returned when a job ends in the error status.
type JobError struct {
	JobID   string
	Task    string
	Code    string
	Message string
}

func (e *JobError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "conversion failed"
	}
	if e.Task == "" {
		return fmt.Sprintf("job %s: %s", e.JobID, msg)
	}
	return fmt.Sprintf("job %s: task %s: %s", e.JobID, e.Task, msg)
}

// Client submits conversion jobs with one API key.
type Client struct {
	apiKey      string
	logger      *zap.Logger
	HTTPClient  *http.Client
	UserAgent   string
	BaseURL     string
	Poller      *poll.Poller
	MaxDownload int64
}

// New returns a client for baseURL. An empty baseURL means production.
func New(baseURL, apiKey string, logger *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey: apiKey,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent:   userAgent,
		BaseURL:     baseURL,
		Poller:      poll.New(poll.DefaultInterval, poll.DefaultTimeout),
		MaxDownload: DefaultMaxDownload,
	}, nil
}

type task struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Operation string         `json:"operation"`
	Status    string         `json:"status"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Result    map[string]any `json:"result"`
}

// Job is the subset of the job resource used here.
type Job struct {
	ID     string `json:"id"`
	Tag    string `json:"tag"`
	Status string `json:"status"`
	Tasks  []task `json:"tasks"`
}

type jobEnvelope struct {
	Data Job `json:"data"`
}

type exportResult struct {
	Files []struct {
		Filename string `mapstructure:"filename"`
		URL      string `mapstructure:"url"`
	} `mapstructure:"files"`
}

// Convert implements pdf.Converter: submit, poll until terminal, fetch once.
func (c *Client) Convert(ctx context.Context, html string) ([]byte, error) {
	job, err := c.CreateJob(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	log := c.logger.With(zap.String("job_id", job.ID), zap.String("tag", job.Tag))
	log.Debug("job created")

	state, err := c.Poller.Until(ctx, func(ctx context.Context) (poll.State, error) {
		current, err := c.GetJob(ctx, job.ID)
		if err != nil {
			return poll.Failed, err
		}
		job = current
		log.Debug("job status", zap.String("status", job.Status))
		return jobState(job.Status), nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for job %s: %w", job.ID, err)
	}
	if state == poll.Failed {
		return nil, failure(job)
	}

	url, err := exportURL(job)
	if err != nil {
		return nil, err
	}

	return c.download(ctx, url)
}

// CreateJob submits the import, convert and export tasks as one job.
func (c *Client) CreateJob(ctx context.Context, html string) (Job, error) {
	payload := map[string]any{
		"tag": "cv-" + uuid.NewString(),
		"tasks": map[string]any{
			taskImport: map[string]any{
				"operation": "import/raw",
				"file":      html,
				"filename":  "document.html",
			},
			taskConvert: map[string]any{
				"operation":     "convert",
				"input":         taskImport,
				"input_format":  "html",
				"output_format": "pdf",
			},
			taskExport: map[string]any{
				"operation": "export/url",
				"input":     taskConvert,
			},
		},
	}

	var env jobEnvelope
	if err := c.do(ctx, http.MethodPost, c.BaseURL+"/jobs", payload, &env); err != nil {
		return Job{}, err
	}
	if env.Data.ID == "" {
		return Job{}, errors.New("job id is missing in response")
	}

	return env.Data, nil
}

// GetJob fetches the current job resource.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var env jobEnvelope
	if err := c.do(ctx, http.MethodGet, c.BaseURL+"/jobs/"+id, nil, &env); err != nil {
		return Job{}, err
	}
	return env.Data, nil
}

func jobState(status string) poll.State {
	switch status {
	case StatusFinished:
		return poll.Finished
	case StatusFailed:
		return poll.Failed
	default:
		return poll.Pending
	}
}

func failure(job Job) error {
	for _, t := range job.Tasks {
		if t.Status == StatusFailed {
			return &JobError{JobID: job.ID, Task: t.Name, Code: t.Code, Message: t.Message}
		}
	}
	return &JobError{JobID: job.ID}
}

func exportURL(job Job) (string, error) {
	for _, t := range job.Tasks {
		if t.Operation != "export/url" || t.Result == nil {
			continue
		}

		var result exportResult
		if err := mapstructure.Decode(t.Result, &result); err != nil {
			return "", fmt.Errorf("decode export result: %w", err)
		}
		for _, f := range result.Files {
			if f.URL != "" {
				return f.URL, nil
			}
		}
	}

	return "", fmt.Errorf("job %s: %w", job.ID, ErrNoExport)
}

func (c *Client) do(ctx context.Context, method, url string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("make request", zap.String("method", method), zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxJobBody+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(raw) > maxJobBody {
		return fmt.Errorf("read response: body exceeds %d bytes", maxJobBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       utils.TruncateForLog(string(raw), maxErrorBody),
		}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// download fetches the exported file. Export URLs are pre-signed, so no
// authorization header is sent.
func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download pdf: %w", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	limit := c.MaxDownload
	if limit <= 0 {
		limit = DefaultMaxDownload
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download pdf: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("download pdf: artifact exceeds %d bytes", limit)
	}

	return data, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", contentType)

	return req
}
