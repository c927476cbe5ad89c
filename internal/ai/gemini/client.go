package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/celemqhele/cvtailorpro/internal/ai"

	"google.golang.org/genai"
)

const (
	jsonMIMEType = "application/json"
)

// modelsAPI is the part of genai.Models the generator needs.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client for a single API key.
type Generator struct {
	models modelsAPI
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Generator{models: client.Models}, nil
}

// Generate sends the request to the given model and returns the joined
// textual parts of the response.
func (g *Generator) Generate(ctx context.Context, model string, req ai.Request) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("gemini model is required")
	}

	prompt := strings.TrimSpace(req.UserPrompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	resp, err := g.models.GenerateContent(ctx, model, genai.Text(prompt), buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return responseText(resp)
}

func buildConfig(req ai.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	if req.Temperature != nil {
		temperature := float32(*req.Temperature)
		cfg.Temperature = &temperature
	}

	if req.JSONMode {
		cfg.ResponseMIMEType = jsonMIMEType
	}

	return cfg
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ai.ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// Only the first candidate with content is used.
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return "", ai.ErrEmptyResponse
	}

	return output, nil
}
