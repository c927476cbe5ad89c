// Package payments verifies payments and payment webhooks with Dodo Payments.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrNotConfigured    = errors.New("payments are not configured")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// StatusSucceeded is the only status that counts as a verified payment.
const StatusSucceeded = "succeeded"

// Payment is the verification result returned to the browser.
type Payment struct {
	Verified  bool   `json:"verified"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaymentID string `json:"paymentId"`
}

// Event is a verified webhook event.
type Event struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Gateway is the payment provider.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	// Unwrap verifies the webhook signature and parses the event.
	Unwrap(payload []byte, headers http.Header) (Event, error)
}

// Service wraps a Gateway. A nil gateway means payments are disabled.
type Service struct {
	gateway Gateway
	logger  *zap.Logger
}

func NewService(gateway Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gateway: gateway, logger: logger}
}

// Verify looks the payment up and reports whether it succeeded.
func (s *Service) Verify(ctx context.Context, paymentID string) (Payment, error) {
	if s.gateway == nil {
		return Payment{}, ErrNotConfigured
	}

	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: paymentId is required", ErrInvalidRequest)
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, fmt.Errorf("get payment %s: %w", paymentID, err)
	}

	payment.Verified = payment.Status == StatusSucceeded
	s.logger.Info("payment verified",
		zap.String("payment_id", payment.PaymentID),
		zap.String("status", payment.Status),
		zap.Bool("verified", payment.Verified),
	)

	return payment, nil
}

// HandleWebhook verifies and parses a webhook delivery.
func (s *Service) HandleWebhook(payload []byte, headers http.Header) (Event, error) {
	if s.gateway == nil {
		return Event{}, ErrNotConfigured
	}
	if len(payload) == 0 {
		return Event{}, fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}

	event, err := s.gateway.Unwrap(payload, headers)
	if err != nil {
		return Event{}, err
	}

	s.logger.Info("webhook received", zap.String("type", event.Type), zap.String("id", event.ID))
	return event, nil
}
