package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/celemqhele/cvtailorpro/internal/ai"
	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptChainAI  = "ai"
	PromptChainPDF = "pdf"
	PromptYes      = "Yes"
	PromptNo       = "No"
)

var chainPrompt = promptui.Select{
	Label: "Which chain?",
	Items: []string{PromptChainAI, PromptChainPDF},
}

var tryCmd = &cobra.Command{
	Use:   "try",
	Short: "Interactively run a request through a fallback chain",
	Run: func(_ *cobra.Command, _ []string) {
		if err := try(); err != nil && !errors.Is(err, promptui.ErrInterrupt) {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(tryCmd)
}

func try() error {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}

	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}

	_, chain, err := chainPrompt.Run()
	if err != nil {
		return err
	}

	switch chain {
	case PromptChainAI:
		return tryAI(ctx, config, logger)
	case PromptChainPDF:
		return tryPDF(ctx, config, logger)
	default:
		return fmt.Errorf("invalid chain: %s", chain)
	}
}

// printAttempt shows every attempt as it finishes.
func printAttempt(r fallback.Report) {
	if r.Err != nil {
		fmt.Printf("  %s failed after %s: %v\n", r.Attempt, r.Duration.Round(time.Millisecond), r.Err)
		return
	}
	fmt.Printf("  %s succeeded after %s\n", r.Attempt, r.Duration.Round(time.Millisecond))
}

func tryAI(ctx context.Context, config *Config, logger *zap.Logger) error {
	service, err := buildAIService(ctx, config.AI, logger, printAttempt)
	if err != nil {
		return err
	}

	userPrompt, err := (&promptui.Prompt{
		Label: "User prompt",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("prompt is required")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return err
	}

	systemPrompt, err := (&promptui.Prompt{Label: "System prompt (optional)"}).Run()
	if err != nil {
		return err
	}

	_, jsonMode, err := (&promptui.Select{Label: "JSON mode?", Items: []string{PromptNo, PromptYes}}).Run()
	if err != nil {
		return err
	}

	resp, err := service.Generate(ctx, ai.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		JSONMode:     jsonMode == PromptYes,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%s/%s:\n%s\n", resp.Provider, resp.Model, resp.Text)
	return nil
}

func tryPDF(ctx context.Context, config *Config, logger *zap.Logger) error {
	service, err := buildPDFService(config.PDF, logger, printAttempt)
	if err != nil {
		return err
	}

	input, err := (&promptui.Prompt{Label: "HTML file"}).Run()
	if err != nil {
		return err
	}

	html, err := os.ReadFile(strings.TrimSpace(input))
	if err != nil {
		return err
	}

	output, err := (&promptui.Prompt{Label: "Output file", Default: "cv.pdf", AllowEdit: true}).Run()
	if err != nil {
		return err
	}

	data, err := service.Convert(ctx, string(html))
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, data, 0o600); err != nil {
		return err
	}

	logger.Info("pdf written", zap.String("filename", output), zap.Int("bytes", len(data)))
	return nil
}
