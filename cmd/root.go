package cmd

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/celemqhele/cvtailorpro/internal/ai"
	"github.com/celemqhele/cvtailorpro/internal/pdf/chrome"
	"github.com/celemqhele/cvtailorpro/internal/secrets"
	"github.com/celemqhele/cvtailorpro/internal/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "cvtailor"

	defaultAddr = ":8080"
)

type Config struct {
	Server    server.Config   `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	AI        AIConfig        `mapstructure:"ai"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

type AuthConfig struct {
	// JWTSecret is the Supabase JWT secret. Auth is off when it resolves to nothing.
	JWTSecret secrets.Source `mapstructure:"jwt-secret"`
}

type AIConfig struct {
	// Providers are tried in order. Empty means ai.DefaultProviders.
	Providers      []ai.ProviderConfig `mapstructure:"providers"`
	AttemptTimeout time.Duration       `mapstructure:"attempt-timeout"`
	MaxLogLength   int                 `mapstructure:"max-log-length"`
}

type PDFConfig struct {
	CloudConvert   CloudConvertConfig `mapstructure:"cloudconvert"`
	Chrome         chrome.Config      `mapstructure:"chrome"`
	AttemptTimeout time.Duration      `mapstructure:"attempt-timeout"`
}

type CloudConvertConfig struct {
	BaseURL      string           `mapstructure:"base-url"`
	Sandbox      bool             `mapstructure:"sandbox"`
	Credentials  []secrets.Source `mapstructure:"credentials"`
	PollInterval time.Duration    `mapstructure:"poll-interval"`
	PollTimeout  time.Duration    `mapstructure:"poll-timeout"`
}

type OCRConfig struct {
	BaseURL           string         `mapstructure:"base-url"`
	APIKey            secrets.Source `mapstructure:"api-key"`
	RequestsPerMinute int            `mapstructure:"requests-per-minute"`
}

type PaymentsConfig struct {
	APIKey     secrets.Source `mapstructure:"api-key"`
	WebhookKey secrets.Source `mapstructure:"webhook-key"`
	// Environment is "live" or "test".
	Environment string `mapstructure:"environment"`
}

type AnalyticsConfig struct {
	PropertyID string `mapstructure:"property-id"`
	// Credentials point at a service account JSON key.
	Credentials secrets.Source `mapstructure:"credentials"`
	CacheTTL    time.Duration  `mapstructure:"cache-ttl"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cvtailor is the backend for the CV tailoring app: AI, PDF, OCR, payments and analytics proxies",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cvtailor.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", defaultAddr)
	v.SetDefault("server.rate-limit", 60)
	v.SetDefault("server.request-timeout", "3m")
	v.SetDefault("ai.attempt-timeout", "60s")
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("pdf.attempt-timeout", "90s")
	v.SetDefault("pdf.chrome.enabled", true)
	v.SetDefault("pdf.cloudconvert.poll-interval", "2s")
	v.SetDefault("pdf.cloudconvert.poll-timeout", "60s")
	v.SetDefault("ocr.requests-per-minute", 30)
	v.SetDefault("analytics.cache-ttl", "5m")

	envs := map[string]string{
		"server.allowed-origins": "ALLOWED_ORIGINS",
		"server.proxy-header":    "PROXY_HEADER",
		"server.trusted-proxies": "TRUSTED_PROXIES",
		"pdf.chrome.exec-path":   "CHROME_PATH",
		"payments.environment":   "DODO_ENVIRONMENT",
		"analytics.property-id":  "GA4_PROPERTY_ID",
	}
	for key, env := range envs {
		if err := v.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}
}

func initConfig() {
	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// The config file is optional unless given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills the credential sources every deployment uses.
func (c *Config) applyDefaults() {
	// PORT is honoured unless the address was set explicitly.
	if port := os.Getenv("PORT"); port != "" && c.Server.Addr == defaultAddr {
		c.Server.Addr = ":" + port
	}

	if len(c.AI.Providers) == 0 {
		c.AI.Providers = ai.DefaultProviders()
	}
	if len(c.PDF.CloudConvert.Credentials) == 0 {
		c.PDF.CloudConvert.Credentials = secrets.FromEnv("CLOUDCONVERT_API_KEY", "CLOUDCONVERT_API_KEY_2")
	}

	defaultSource(&c.Auth.JWTSecret, "supabase jwt secret", "SUPABASE_JWT_SECRET")
	defaultSource(&c.OCR.APIKey, "ocr api key", "OCR_SPACE_API_KEY")
	defaultSource(&c.Payments.APIKey, "dodo payments api key", "DODO_PAYMENTS_API_KEY")
	defaultSource(&c.Payments.WebhookKey, "dodo payments webhook key", "DODO_PAYMENTS_WEBHOOK_KEY")

	if c.Analytics.Credentials == (secrets.Source{}) {
		c.Analytics.Credentials = secrets.Source{Name: "google credentials", File: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), Env: "GA4_CREDENTIALS_JSON"}
	}
}

func defaultSource(src *secrets.Source, name, env string) {
	if *src == (secrets.Source{}) {
		*src = secrets.Source{Name: name, Env: env}
	}
}
