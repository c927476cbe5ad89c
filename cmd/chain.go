package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the resolved AI and PDF fallback chains without secrets",
	Run: func(_ *cobra.Command, _ []string) {
		printChains()
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

type chainReport struct {
	AI  []fallback.Info `json:"ai"`
	PDF []fallback.Info `json:"pdf"`
}

func printChains() {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	aiService, err := buildAIService(context.Background(), config.AI, logger, nil)
	if err != nil {
		logger.Fatal("building ai chain", zap.Error(err))
	}

	pdfService, err := buildPDFService(config.PDF, logger, nil)
	if err != nil {
		logger.Fatal("building pdf chain", zap.Error(err))
	}

	// do not bother error since Info always marshals
	pretty, _ := json.MarshalIndent(chainReport{AI: aiService.Describe(), PDF: pdfService.Describe()}, "", "  ")
	fmt.Println(string(pretty))
}
