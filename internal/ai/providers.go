package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/logger"
	"github.com/celemqhele/cvtailorpro/internal/secrets"

	"go.uber.org/zap"
)

const (
	KindGemini = "gemini"
	KindOpenAI = "openai"
)

// ProviderConfig is one entry of the ordered provider list.
type ProviderConfig struct {
	Name    string            `mapstructure:"name"`
	Kind    string            `mapstructure:"kind"`
	BaseURL string            `mapstructure:"base-url"`
	Headers map[string]string `mapstructure:"headers"`
	// Models are tried in order for every credential.
	Models      []string         `mapstructure:"models"`
	Credentials []secrets.Source `mapstructure:"credentials"`
}

// TransportFactory builds the transport for one provider credential.
type TransportFactory func(ctx context.Context, provider ProviderConfig, apiKey string) (Generator, error)

// DefaultProviders is used when the configuration lists no providers.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:        "gemini",
			Kind:        KindGemini,
			Models:      []string{"gemini-2.5-flash", "gemini-2.0-flash"},
			Credentials: secrets.FromEnv("GEMINI_API_KEY", "GEMINI_API_KEY_2", "GEMINI_API_KEY_3"),
		},
		{
			Name:        "groq",
			Kind:        KindOpenAI,
			BaseURL:     "https://api.groq.com/openai/v1",
			Models:      []string{"llama-3.3-70b-versatile"},
			Credentials: secrets.FromEnv("GROQ_API_KEY"),
		},
		{
			Name:    "openrouter",
			Kind:    KindOpenAI,
			BaseURL: "https://openrouter.ai/api/v1",
			Headers: map[string]string{
				"X-Title": "CV Tailor Pro",
			},
			Models:      []string{"deepseek/deepseek-chat"},
			Credentials: secrets.FromEnv("OPENROUTER_API_KEY"),
		},
		{
			Name:        "deepseek",
			Kind:        KindOpenAI,
			BaseURL:     "https://api.deepseek.com",
			Models:      []string{"deepseek-chat"},
			Credentials: secrets.FromEnv("DEEPSEEK_API_KEY"),
		},
	}
}

// BuildAttempts expands providers into attempts: provider order, then
// credential order, then model order. Providers without a usable credential
// are skipped.
func BuildAttempts(ctx context.Context, providers []ProviderConfig, factory TransportFactory, log *zap.Logger) ([]fallback.Attempt[Request, string], error) {
	log = logger.WithFields(log)

	var attempts []fallback.Attempt[Request, string]
	for _, provider := range providers {
		name := strings.TrimSpace(provider.Name)
		if name == "" {
			name = provider.Kind
		}

		if len(provider.Models) == 0 {
			return nil, fmt.Errorf("provider %s: at least one model is required", name)
		}

		creds, err := secrets.LoadAll(provider.Credentials)
		if err != nil {
			log.Warn("some provider credentials could not be read", zap.String(logger.FieldProvider, name), zap.Error(err))
		}
		if len(creds) == 0 {
			log.Debug("skipping provider without credentials", zap.String(logger.FieldProvider, name))
			continue
		}

		for i, cred := range creds {
			transport, err := factory(ctx, provider, cred.Value)
			if err != nil {
				return nil, fmt.Errorf("provider %s (%s): %w", name, cred.Label, err)
			}

			label := name
			if len(creds) > 1 {
				label = fmt.Sprintf("%s#%d", name, i+1)
			}

			for _, model := range provider.Models {
				attempts = append(attempts, fallback.Attempt[Request, string]{
					Provider: label,
					Model:    model,
					Rank:     len(attempts),
					Call:     call(transport, model),
				})
			}
		}
	}

	return attempts, nil
}

func call(transport Generator, model string) fallback.Call[Request, string] {
	return func(ctx context.Context, req Request) (string, error) {
		text, err := transport.Generate(ctx, model, req)
		if err != nil {
			return "", err
		}
		return normalize(text, req.JSONMode)
	}
}

// normalize rejects empty output and, in JSON mode, anything that is not a
// JSON document once markdown fences are stripped.
func normalize(text string, jsonMode bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}

	if !jsonMode {
		return text, nil
	}

	cleaned := ExtractJSON(text)
	if !json.Valid([]byte(cleaned)) {
		return "", errors.New("provider returned malformed json")
	}
	return cleaned, nil
}

// ExtractJSON strips markdown code fences that models like to wrap JSON in.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
