// Package ocr extracts text from images through the OCR.space API.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/celemqhele/cvtailorpro/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://api.ocr.space/parse/image"
	DefaultLanguage = "eng"

	userAgent    = "cvtailorpro-bff"
	maxErrorBody = 300
)

var (
	ErrNotConfigured  = errors.New("ocr is not configured")
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is the body of the OCR endpoint. Exactly one of Base64Image and
// URL is used; Base64Image wins.
type Request struct {
	Base64Image string `json:"base64Image"`
	URL         string `json:"url"`
	Language    string `json:"language"`
}

// Validate checks that an image was supplied.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Base64Image) == "" && strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: base64Image or url is required", ErrInvalidRequest)
	}
	return nil
}

// ProcessingError is returned when OCR.space reports IsErroredOnProcessing.
type ProcessingError struct {
	ExitCode int
	Messages []string
}

func (e *ProcessingError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("ocr processing failed with exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("ocr processing failed: %s", strings.Join(e.Messages, "; "))
}

// Client calls OCR.space with one API key.
type Client struct {
	apiKey     string
	limiter    *rate.Limiter
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	BaseURL    string
	Engine     int
}

// New returns a client. An empty apiKey yields a client whose calls fail
// with ErrNotConfigured. perMinute paces outbound calls; zero disables pacing.
func New(baseURL, apiKey string, perMinute int, logger *zap.Logger) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}

	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		limiter: limiter,
		logger:  logger,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		UserAgent: userAgent,
		BaseURL:   baseURL,
		Engine:    2,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText        string `json:"ParsedText"`
		FileParseExitCode int    `json:"FileParseExitCode"`
		ErrorMessage      string `json:"ErrorMessage"`
	} `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// Recognize returns the text of every parsed page joined by newlines.
func (c *Client) Recognize(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = DefaultLanguage
	}

	form := map[string]string{
		"language":          language,
		"isOverlayRequired": "false",
		"scale":             "true",
		"OCREngine":         fmt.Sprint(c.Engine),
	}
	if image := strings.TrimSpace(req.Base64Image); image != "" {
		form["base64Image"] = dataURI(image)
	} else {
		form["url"] = strings.TrimSpace(req.URL)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var resp parseResponse
	if err := c.postFormData(ctx, form, &resp); err != nil {
		return "", err
	}

	if resp.IsErroredOnProcessing {
		return "", &ProcessingError{ExitCode: resp.OCRExitCode, Messages: errorMessages(resp.ErrorMessage)}
	}

	texts := make([]string, 0, len(resp.ParsedResults))
	for _, r := range resp.ParsedResults {
		if text := strings.TrimSpace(r.ParsedText); text != "" {
			texts = append(texts, text)
		}
	}

	c.logger.Debug("ocr finished", zap.Int("pages", len(resp.ParsedResults)), zap.Int("exit_code", resp.OCRExitCode))
	return strings.Join(texts, "\n"), nil
}

// dataURI prefixes bare base64 payloads the way the API expects.
func dataURI(image string) string {
	if strings.HasPrefix(image, "data:") {
		return image
	}
	return "data:image/png;base64," + image
}

// errorMessages accepts both the string and the array form of ErrorMessage.
func errorMessages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}

	return nil
}

func (c *Client) postFormData(ctx context.Context, data map[string]string, target any) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for key, val := range data {
		field, err := w.CreateFormField(key)
		if err != nil {
			return err
		}

		if _, err := io.Copy(field, strings.NewReader(val)); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, &b)
	if err != nil {
		return err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Content-Type", w.FormDataContentType())

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s: %s", resp.Status, utils.TruncateForLog(string(raw), maxErrorBody))
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
