// Package openai talks to OpenAI-compatible chat completion APIs
// (OpenAI, Groq, OpenRouter, DeepSeek and friends).
package openai

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

	"github.com/celemqhele/cvtailorpro/internal/ai"
	"github.com/celemqhele/cvtailorpro/internal/utils"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	contentType     = "application/json"
	completionsPath = "/chat/completions"
	userAgent       = "cvtailorpro-bff"
	maxErrorBody    = 300
	maxResponseBody = 4 << 20
)

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

// Client calls a chat completions endpoint with one API key.
type Client struct {
	apiKey     string
	logger     *zap.Logger
	headers    map[string]string
	HTTPClient *http.Client
	UserAgent  string
	BaseURL    string
}

// New returns a client for baseURL. An empty baseURL means OpenAI itself.
func New(baseURL, apiKey string, headers map[string]string, logger *zap.Logger) (*Client, error) {
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
		apiKey:  apiKey,
		logger:  logger,
		headers: headers,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		UserAgent: userAgent,
		BaseURL:   baseURL,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements ai.Generator.
func (c *Client) Generate(ctx context.Context, model string, req ai.Request) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	body := completionRequest{
		Model:       model,
		Temperature: req.Temperature,
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		body.Messages = append(body.Messages, message{Role: "system", Content: system})
	}
	body.Messages = append(body.Messages, message{Role: "user", Content: req.UserPrompt})
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp completionResponse
	if err := c.postJSON(ctx, c.BaseURL+completionsPath, body, &resp); err != nil {
		return "", err
	}

	if resp.Error != nil && resp.Error.Message != "" {
		return "", fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ai.ErrEmptyResponse
	}

	return text, nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload, target any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(raw) > maxResponseBody {
		return fmt.Errorf("read response: body exceeds %d bytes", maxResponseBody)
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

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", contentType)
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	return req
}
