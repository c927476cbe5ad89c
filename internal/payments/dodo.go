package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dodopayments/dodopayments-go"
	"github.com/dodopayments/dodopayments-go/option"
)

// DodoGateway implements Gateway with the Dodo Payments SDK.
type DodoGateway struct {
	client     *dodopayments.Client
	webhookKey string
}

// NewDodoGateway returns a gateway for apiKey. environment "test" selects
// test mode. webhookKey may be empty, in which case webhooks are rejected as
// not configured.
func NewDodoGateway(apiKey, webhookKey, environment string) (*DodoGateway, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	envOpt := option.WithEnvironmentLiveMode()
	if strings.EqualFold(strings.TrimSpace(environment), "test") {
		envOpt = option.WithEnvironmentTestMode()
	}

	return &DodoGateway{
		client:     dodopayments.NewClient(option.WithBearerToken(apiKey), envOpt),
		webhookKey: strings.TrimSpace(webhookKey),
	}, nil
}

func (g *DodoGateway) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	p, err := g.client.Payments.Get(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}

	return Payment{
		Status:    string(p.Status),
		Amount:    p.TotalAmount,
		Currency:  string(p.Currency),
		PaymentID: p.PaymentID,
	}, nil
}

func (g *DodoGateway) Unwrap(payload []byte, headers http.Header) (Event, error) {
	if g.webhookKey == "" {
		return Event{}, fmt.Errorf("webhook key: %w", ErrNotConfigured)
	}

	event, err := g.client.Webhooks.Unwrap(payload, headers, option.WithWebhookKey(g.webhookKey))
	if err != nil {
		return Event{}, errors.Join(ErrInvalidSignature, err)
	}

	out := Event{Type: string(event.Type)}
	switch e := event.AsUnion().(type) {
	case dodopayments.PaymentSucceededWebhookEvent:
		out.ID = e.Data.PaymentID
	case dodopayments.PaymentFailedWebhookEvent:
		out.ID = e.Data.PaymentID
	case dodopayments.SubscriptionActiveWebhookEvent:
		out.ID = e.Data.SubscriptionID
	case dodopayments.SubscriptionCancelledWebhookEvent:
		out.ID = e.Data.SubscriptionID
	}

	return out, nil
}
