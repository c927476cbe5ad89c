// Package pdf turns CV HTML into PDF documents, through a fallback chain of
// conversion backends or directly through the local renderer.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/logger"

	"go.uber.org/zap"
)

// ErrInvalidRequest wraps input validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// ErrRendererDisabled is returned by Render when no local renderer is configured.
var ErrRendererDisabled = errors.New("pdf renderer is not configured")

// Converter produces PDF bytes from a complete HTML document.
type Converter interface {
	Convert(ctx context.Context, html string) ([]byte, error)
}

// Backend is a named converter placed in the conversion chain.
type Backend struct {
	Name      string
	Converter Converter
}

// Document is the input of the render endpoint. HTML wins over Markdown.
type Document struct {
	HTML     string `json:"htmlContent"`
	Markdown string `json:"markdown"`
	Title    string `json:"title"`
}

// Attempts turns backends into chain attempts in the given order. Every
// artifact is validated, so a backend returning garbage counts as failed.
func Attempts(backends []Backend) []fallback.Attempt[string, []byte] {
	attempts := make([]fallback.Attempt[string, []byte], 0, len(backends))
	for i, b := range backends {
		converter := b.Converter
		attempts = append(attempts, fallback.Attempt[string, []byte]{
			Provider: b.Name,
			Rank:     i,
			Call: func(ctx context.Context, html string) ([]byte, error) {
				data, err := converter.Convert(ctx, html)
				if err != nil {
					return nil, err
				}
				if err := Validate(data); err != nil {
					return nil, err
				}
				return data, nil
			},
		})
	}
	return attempts
}

// Service converts and renders documents.
type Service struct {
	chain    *fallback.Chain[string, []byte]
	renderer Converter
	logger   *zap.Logger
}

// NewService builds the service. renderer may be nil, which disables Render.
func NewService(chain *fallback.Chain[string, []byte], renderer Converter, log *zap.Logger) *Service {
	return &Service{chain: chain, renderer: renderer, logger: logger.WithFields(log)}
}

// Convert runs htmlContent through the conversion chain.
func (s *Service) Convert(ctx context.Context, htmlContent string) ([]byte, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return nil, fmt.Errorf("%w: htmlContent is required", ErrInvalidRequest)
	}

	res, err := s.chain.Run(ctx, WrapHTML(htmlContent, ""))
	if err != nil {
		return nil, err
	}

	s.logger.Info("pdf converted",
		zap.String(logger.FieldProvider, res.Attempt.Provider),
		zap.Int("bytes", len(res.Value)),
		zap.Int("failed_attempts", len(res.Failures)),
	)

	return res.Value, nil
}

// Render prints doc with the local renderer only.
func (s *Service) Render(ctx context.Context, doc Document) ([]byte, error) {
	if s.renderer == nil {
		return nil, ErrRendererDisabled
	}

	var html string
	switch {
	case strings.TrimSpace(doc.HTML) != "":
		html = WrapHTML(doc.HTML, doc.Title)
	case strings.TrimSpace(doc.Markdown) != "":
		var err error
		html, err = MarkdownToHTML(doc.Markdown, doc.Title)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: htmlContent or markdown is required", ErrInvalidRequest)
	}

	data, err := s.renderer.Convert(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}

	return data, nil
}

// Describe lists the conversion chain in run order.
func (s *Service) Describe() []fallback.Info {
	return s.chain.Describe()
}
