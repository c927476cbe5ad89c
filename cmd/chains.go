package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/celemqhele/cvtailorpro/internal/ai"
	"github.com/celemqhele/cvtailorpro/internal/ai/gemini"
	"github.com/celemqhele/cvtailorpro/internal/ai/openai"
	"github.com/celemqhele/cvtailorpro/internal/analytics"
	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/logger"
	"github.com/celemqhele/cvtailorpro/internal/ocr"
	"github.com/celemqhele/cvtailorpro/internal/payments"
	"github.com/celemqhele/cvtailorpro/internal/pdf"
	"github.com/celemqhele/cvtailorpro/internal/pdf/chrome"
	"github.com/celemqhele/cvtailorpro/internal/pdf/cloudconvert"
	"github.com/celemqhele/cvtailorpro/internal/poll"
	"github.com/celemqhele/cvtailorpro/internal/secrets"

	"go.uber.org/zap"
)

// newTransport builds the transport for one provider credential.
func newTransport(log *zap.Logger) ai.TransportFactory {
	return func(ctx context.Context, provider ai.ProviderConfig, apiKey string) (ai.Generator, error) {
		switch strings.ToLower(strings.TrimSpace(provider.Kind)) {
		case ai.KindGemini:
			gen, err := gemini.NewGenerator(ctx, apiKey)
			if err != nil {
				return nil, err
			}
			return gen, nil
		case ai.KindOpenAI, "":
			client, err := openai.New(provider.BaseURL, apiKey, provider.Headers, logger.WithCommonFields(log, provider.Name, ""))
			if err != nil {
				return nil, err
			}
			return client, nil
		default:
			return nil, fmt.Errorf("unsupported provider kind: %s", provider.Kind)
		}
	}
}

func buildAIService(ctx context.Context, cfg AIConfig, logger *zap.Logger, observer fallback.Observer) (*ai.Service, error) {
	attempts, err := ai.BuildAttempts(ctx, cfg.Providers, newTransport(logger), logger)
	if err != nil {
		return nil, fmt.Errorf("building ai attempts: %w", err)
	}

	opts := []fallback.Option{
		fallback.WithAttemptTimeout(cfg.AttemptTimeout),
		fallback.WithLogger(logger),
	}
	if observer != nil {
		opts = append(opts, fallback.WithObserver(observer))
	}

	chain := fallback.New("ai", attempts, opts...)
	if chain.Len() == 0 {
		logger.Warn("no ai provider has credentials, /api/ai/generate will answer 500")
	}

	return ai.NewService(chain, logger, cfg.MaxLogLength), nil
}

func buildPDFService(cfg PDFConfig, logger *zap.Logger, observer fallback.Observer) (*pdf.Service, error) {
	creds, err := secrets.LoadAll(cfg.CloudConvert.Credentials)
	if err != nil {
		logger.Warn("some cloudconvert credentials could not be read", zap.Error(err))
	}

	baseURL := cfg.CloudConvert.BaseURL
	if baseURL == "" && cfg.CloudConvert.Sandbox {
		baseURL = cloudconvert.SandboxBaseURL
	}

	var backends []pdf.Backend
	for i, cred := range creds {
		client, err := cloudconvert.New(baseURL, cred.Value, logger.With(zap.String("backend", "cloudconvert")))
		if err != nil {
			return nil, fmt.Errorf("cloudconvert (%s): %w", cred.Label, err)
		}
		client.Poller = poll.New(cfg.CloudConvert.PollInterval, cfg.CloudConvert.PollTimeout)

		name := "cloudconvert"
		if len(creds) > 1 {
			name = fmt.Sprintf("cloudconvert#%d", i+1)
		}
		backends = append(backends, pdf.Backend{Name: name, Converter: client})
	}

	var renderer pdf.Converter
	if cfg.Chrome.Enabled {
		r := chrome.New(cfg.Chrome, logger.With(zap.String("backend", "chrome")))
		backends = append(backends, pdf.Backend{Name: "chrome", Converter: r})
		renderer = r
	}

	opts := []fallback.Option{
		fallback.WithAttemptTimeout(cfg.AttemptTimeout),
		fallback.WithLogger(logger),
	}
	if observer != nil {
		opts = append(opts, fallback.WithObserver(observer))
	}

	return pdf.NewService(fallback.New("pdf", pdf.Attempts(backends), opts...), renderer, logger), nil
}

func buildOCRClient(cfg OCRConfig, logger *zap.Logger) *ocr.Client {
	key, err := secrets.Load(cfg.APIKey)
	if err != nil && !errors.Is(err, secrets.ErrNotConfigured) {
		logger.Warn("ocr api key could not be read", zap.Error(err))
	}
	return ocr.New(cfg.BaseURL, key, cfg.RequestsPerMinute, logger.With(zap.String("backend", "ocr.space")))
}

func buildPaymentsService(cfg PaymentsConfig, logger *zap.Logger) *payments.Service {
	apiKey, err := secrets.Load(cfg.APIKey)
	if err != nil {
		logger.Info("payments disabled", zap.Error(err))
		return payments.NewService(nil, logger)
	}

	webhookKey, err := secrets.Load(cfg.WebhookKey)
	if err != nil {
		logger.Info("payment webhooks disabled", zap.Error(err))
	}

	gateway, err := payments.NewDodoGateway(apiKey, webhookKey, cfg.Environment)
	if err != nil {
		logger.Warn("payments disabled", zap.Error(err))
		return payments.NewService(nil, logger)
	}

	return payments.NewService(gateway, logger)
}

func buildAnalyticsService(ctx context.Context, cfg AnalyticsConfig, logger *zap.Logger) *analytics.Service {
	disabled := analytics.NewService(nil, "", cfg.CacheTTL, logger)
	if strings.TrimSpace(cfg.PropertyID) == "" {
		logger.Info("analytics disabled", zap.String("reason", "no property id"))
		return disabled
	}

	credentials, err := secrets.Load(cfg.Credentials)
	if err != nil {
		logger.Info("analytics disabled", zap.Error(err))
		return disabled
	}

	reporter, err := analytics.NewGA4Reporter(ctx, []byte(credentials))
	if err != nil {
		logger.Warn("analytics disabled", zap.Error(err))
		return disabled
	}

	return analytics.NewService(reporter, cfg.PropertyID, cfg.CacheTTL, logger)
}
