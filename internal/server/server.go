// Package server exposes the proxies over HTTP.
package server

import (
	"context"
	"strings"
	"time"

	"github.com/celemqhele/cvtailorpro/internal/logger"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultBodyLimit      = 15 << 20
	defaultRequestTimeout = 3 * time.Minute
	defaultRateLimit      = 60
	webhookPath           = "/api/payments/webhook"
)

// Config is the HTTP layer configuration.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins string        `mapstructure:"allowed-origins"`
	BodyLimit      int           `mapstructure:"body-limit"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	// RateLimit is the number of API requests allowed per IP per minute.
	// Zero disables the limiter.
	RateLimit int `mapstructure:"rate-limit"`
	// ProxyHeader names the header carrying the client address, for example
	// X-Forwarded-For. When TrustedProxies is set the header is only read
	// from those peers.
	ProxyHeader    string   `mapstructure:"proxy-header"`
	TrustedProxies []string `mapstructure:"trusted-proxies"`
	// JWTSecret enables bearer token verification on API routes.
	JWTSecret string `mapstructure:"-"`
}

// Services are the proxies mounted by the server.
type Services struct {
	AI        TextGenerator
	PDF       DocumentConverter
	OCR       TextRecognizer
	Payments  PaymentVerifier
	Analytics ReportRunner
}

// Server is the fiber application with its metrics registry.
type Server struct {
	app      *fiber.App
	registry *prometheus.Registry
	metrics  *Metrics
	logger   *zap.Logger
	addr     string
}

// New builds the application with its middleware and the health and metrics
// routes. Proxy routes are added by Mount.
func New(cfg Config, log *zap.Logger) *Server {
	log = logger.WithFields(log)

	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaultBodyLimit
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if strings.TrimSpace(cfg.AllowedOrigins) == "" {
		cfg.AllowedOrigins = "*"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := fiber.New(fiber.Config{
		AppName:               "cvtailor",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          cfg.RequestTimeout + 10*time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),

		ProxyHeader:             cfg.ProxyHeader,
		EnableIPValidation:      cfg.ProxyHeader != "",
		EnableTrustedProxyCheck: len(cfg.TrustedProxies) > 0,
		TrustedProxies:          cfg.TrustedProxies,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(accessLog(log))

	prom := fiberprometheus.NewWithRegistry(registry, "cvtailor", "http", "", nil)
	app.Use(prom.Middleware)

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	s := &Server{
		app:      app,
		registry: registry,
		metrics:  NewMetrics(registry),
		logger:   log,
		addr:     cfg.Addr,
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := app.Group("/api", withTimeout(cfg.RequestTimeout))
	if cfg.RateLimit > 0 {
		api.Use(rateLimiter(cfg.RateLimit, log))
	}
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		api.Use(Auth(secret, log, func(c *fiber.Ctx) bool { return c.Path() == webhookPath }))
	}

	return s
}

// Metrics returns the attempt metrics bound to this server's registry. Its
// Observe method is meant to be passed to fallback.WithObserver.
func (s *Server) Metrics() *Metrics { return s.metrics }

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Mount registers the proxy routes. Nil services are not mounted.
func (s *Server) Mount(svc Services) {
	api := s.app.Group("/api")

	route := func(path string, handler fiber.Handler) {
		api.Post(path, handler)
		api.All(path, methodNotAllowed)
	}

	if svc.AI != nil {
		h := NewAIHandler(svc.AI)
		route("/ai/generate", h.Generate)
	}
	if svc.PDF != nil {
		h := NewPDFHandler(svc.PDF)
		route("/pdf/convert", h.Convert)
		route("/pdf/render", h.Render)
	}
	if svc.OCR != nil {
		h := NewOCRHandler(svc.OCR)
		route("/ocr", h.Recognize)
	}
	if svc.Payments != nil {
		h := NewPaymentsHandler(svc.Payments)
		route("/payments/verify", h.Verify)
		route("/payments/webhook", h.Webhook)
	}
	if svc.Analytics != nil {
		h := NewAnalyticsHandler(svc.Analytics)
		route("/analytics/report", h.Report)
	}
}

// Run listens until ctx is done, then shuts the app down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.addr))
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		return s.app.ShutdownWithTimeout(10 * time.Second)
	}
}

func withTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()

		c.SetUserContext(ctx)
		return c.Next()
	}
}

func rateLimiter(perMinute int, log *zap.Logger) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "api:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Warn("rate limit reached", zap.String("ip", c.IP()), zap.String("path", c.Path()))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "too many requests, please slow down",
				"retry_after": 60,
			})
		},
	})
}

func accessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
		}

		log.Debug("request",
			zap.String(logger.FieldRequestID, requestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
		)
		return err
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
