// Package ai proxies text generation to LLM providers through an ordered
// fallback chain.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("provider returned empty response")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is the normalized text generation request accepted from the browser.
type Request struct {
	SystemPrompt string   `json:"systemPrompt"`
	UserPrompt   string   `json:"userPrompt"`
	Temperature  *float64 `json:"temperature,omitempty"`
	JSONMode     bool     `json:"jsonMode"`
}

// Validate checks the fields every provider needs.
func (r Request) Validate() error {
	if strings.TrimSpace(r.UserPrompt) == "" {
		return fmt.Errorf("%w: userPrompt is required", ErrInvalidRequest)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidRequest)
	}
	return nil
}

// Response is the text produced by the first provider that succeeded.
type Response struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Generator is a provider transport bound to a single credential.
type Generator interface {
	Generate(ctx context.Context, model string, req Request) (string, error)
}
