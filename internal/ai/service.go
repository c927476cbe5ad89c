package ai

import (
	"context"
	"unicode/utf8"

	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/logger"
	"github.com/celemqhele/cvtailorpro/internal/utils"

	"go.uber.org/zap"
)

const defaultMaxLogLength = 200

// Service generates text through the AI fallback chain.
type Service struct {
	chain     *fallback.Chain[Request, string]
	logger    *zap.Logger
	maxLogLen int
}

// NewService wraps a chain. maxLogLength bounds prompt previews in debug logs.
func NewService(chain *fallback.Chain[Request, string], log *zap.Logger, maxLogLength int) *Service {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Service{
		chain:     chain,
		logger:    logger.WithFields(log),
		maxLogLen: maxLogLength,
	}
}

// Generate validates req and returns the first provider answer.
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.logger.Debug("ai generate request",
		zap.Int("prompt_length", utf8.RuneCountInString(req.UserPrompt)),
		zap.String("prompt_preview", utils.TruncateForLog(req.UserPrompt, s.maxLogLen)),
		zap.Bool("json_mode", req.JSONMode),
	)

	res, err := s.chain.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("ai generate response",
		append(logger.CommonFields(res.Attempt.Provider, res.Attempt.Model),
			zap.Int("response_length", utf8.RuneCountInString(res.Value)),
			zap.String("response_preview", utils.TruncateForLog(res.Value, s.maxLogLen)),
			zap.Int("failed_attempts", len(res.Failures)),
		)...,
	)

	return &Response{Text: res.Value, Provider: res.Attempt.Provider, Model: res.Attempt.Model}, nil
}

// Describe lists the chain attempts in run order.
func (s *Service) Describe() []fallback.Info {
	return s.chain.Describe()
}
