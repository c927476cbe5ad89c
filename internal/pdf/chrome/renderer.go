// Package chrome prints HTML to PDF with a local headless Chrome.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const DefaultTimeout = 30 * time.Second

// A4 in inches.
const (
	paperWidth  = 8.27
	paperHeight = 11.69
	margin      = 0.4
)

// Config controls the browser process.
type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	ExecPath string        `mapstructure:"exec-path"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Renderer launches a fresh browser per document.
type Renderer struct {
	execPath string
	timeout  time.Duration
	logger   *zap.Logger

	print func(ctx context.Context, html string) ([]byte, error)
}

// New returns a renderer for cfg.
func New(cfg Config, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r := &Renderer{
		execPath: strings.TrimSpace(cfg.ExecPath),
		timeout:  timeout,
		logger:   logger,
	}
	r.print = r.printToPDF
	return r
}

// Convert implements pdf.Converter.
func (r *Renderer) Convert(ctx context.Context, html string) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("html is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	data, err := r.print(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}

	r.logger.Debug("pdf printed", zap.Int("bytes", len(data)), zap.Duration("took", time.Since(start)))
	return data, nil
}

func (r *Renderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}
	return opts
}

func (r *Renderer) printToPDF(ctx context.Context, html string) ([]byte, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer allocCancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var buf []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(false).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				WithPaperWidth(paperWidth).
				WithPaperHeight(paperHeight).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}

	return buf, nil
}
