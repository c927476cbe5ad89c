package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/celemqhele/cvtailorpro/internal/logger"
	"github.com/celemqhele/cvtailorpro/internal/secrets"
	"github.com/celemqhele/cvtailorpro/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cvtailor backend", zap.String("version", resolveVersion()))

	jwtSecret, err := secrets.Load(config.Auth.JWTSecret)
	if err != nil {
		logger.Warn("bearer auth disabled", zap.Error(err))
	}
	config.Server.JWTSecret = jwtSecret

	srv := server.New(config.Server, logger)
	observer := srv.Metrics().Observe

	aiService, err := buildAIService(ctx, config.AI, logger, observer)
	if err != nil {
		logger.Fatal("building ai chain", zap.Error(err))
	}

	pdfService, err := buildPDFService(config.PDF, logger, observer)
	if err != nil {
		logger.Fatal("building pdf chain", zap.Error(err))
	}

	logger.Info("fallback chains ready",
		zap.Stringers("ai", aiService.Describe()),
		zap.Stringers("pdf", pdfService.Describe()),
	)

	srv.Mount(server.Services{
		AI:        aiService,
		PDF:       pdfService,
		OCR:       buildOCRClient(config.OCR, logger),
		Payments:  buildPaymentsService(config.Payments, logger),
		Analytics: buildAnalyticsService(ctx, config.Analytics, logger),
	})

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
