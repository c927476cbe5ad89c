package server

import (
	"context"
	"net/http"

	"github.com/celemqhele/cvtailorpro/internal/ai"
	"github.com/celemqhele/cvtailorpro/internal/analytics"
	"github.com/celemqhele/cvtailorpro/internal/ocr"
	"github.com/celemqhele/cvtailorpro/internal/payments"
	"github.com/celemqhele/cvtailorpro/internal/pdf"

	"github.com/gofiber/fiber/v2"
)

// TextGenerator is the AI proxy.
type TextGenerator interface {
	Generate(ctx context.Context, req ai.Request) (*ai.Response, error)
}

// DocumentConverter is the PDF proxy.
type DocumentConverter interface {
	Convert(ctx context.Context, htmlContent string) ([]byte, error)
	Render(ctx context.Context, doc pdf.Document) ([]byte, error)
}

// TextRecognizer is the OCR proxy.
type TextRecognizer interface {
	Recognize(ctx context.Context, req ocr.Request) (string, error)
}

// PaymentVerifier is the payments proxy.
type PaymentVerifier interface {
	Verify(ctx context.Context, paymentID string) (payments.Payment, error)
	HandleWebhook(payload []byte, headers http.Header) (payments.Event, error)
}

// ReportRunner is the analytics proxy.
type ReportRunner interface {
	Report(ctx context.Context, q analytics.Query) (analytics.Report, error)
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	return nil
}

// AIHandler serves text generation.
type AIHandler struct {
	ai TextGenerator
}

func NewAIHandler(gen TextGenerator) *AIHandler {
	return &AIHandler{ai: gen}
}

func (h *AIHandler) Generate(c *fiber.Ctx) error {
	var req ai.Request
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.ai.Generate(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// PDFHandler serves conversion and rendering.
type PDFHandler struct {
	pdf DocumentConverter
}

func NewPDFHandler(conv DocumentConverter) *PDFHandler {
	return &PDFHandler{pdf: conv}
}

func (h *PDFHandler) Convert(c *fiber.Ctx) error {
	var doc pdf.Document
	if err := parseBody(c, &doc); err != nil {
		return err
	}

	data, err := h.pdf.Convert(c.UserContext(), doc.HTML)
	if err != nil {
		return err
	}

	return sendPDF(c, data)
}

func (h *PDFHandler) Render(c *fiber.Ctx) error {
	var doc pdf.Document
	if err := parseBody(c, &doc); err != nil {
		return err
	}

	data, err := h.pdf.Render(c.UserContext(), doc)
	if err != nil {
		return err
	}

	return sendPDF(c, data)
}

func sendPDF(c *fiber.Ctx, data []byte) error {
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="cv.pdf"`)
	return c.Send(data)
}

// OCRHandler serves text recognition.
type OCRHandler struct {
	ocr TextRecognizer
}

func NewOCRHandler(rec TextRecognizer) *OCRHandler {
	return &OCRHandler{ocr: rec}
}

func (h *OCRHandler) Recognize(c *fiber.Ctx) error {
	var req ocr.Request
	if err := parseBody(c, &req); err != nil {
		return err
	}

	text, err := h.ocr.Recognize(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"text": text})
}

// PaymentsHandler serves payment verification and webhooks.
type PaymentsHandler struct {
	payments PaymentVerifier
}

func NewPaymentsHandler(p PaymentVerifier) *PaymentsHandler {
	return &PaymentsHandler{payments: p}
}

type verifyRequest struct {
	PaymentID string `json:"paymentId"`
}

func (h *PaymentsHandler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	payment, err := h.payments.Verify(c.UserContext(), req.PaymentID)
	if err != nil {
		return err
	}

	return c.JSON(payment)
}

func (h *PaymentsHandler) Webhook(c *fiber.Ctx) error {
	headers := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})

	// fasthttp reuses the body buffer after the handler returns.
	payload := append([]byte(nil), c.Body()...)

	event, err := h.payments.HandleWebhook(payload, headers)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"received": true, "type": event.Type})
}

// AnalyticsHandler serves GA4 reports.
type AnalyticsHandler struct {
	analytics ReportRunner
}

func NewAnalyticsHandler(r ReportRunner) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: r}
}

func (h *AnalyticsHandler) Report(c *fiber.Ctx) error {
	var q analytics.Query
	if err := parseBody(c, &q); err != nil {
		return err
	}

	report, err := h.analytics.Report(c.UserContext(), q)
	if err != nil {
		return err
	}

	return c.JSON(report)
}

func methodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, fiber.MethodPost)
	return fiber.NewError(fiber.StatusMethodNotAllowed, "method not allowed")
}
