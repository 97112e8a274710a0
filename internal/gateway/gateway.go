package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifiers.
const (
	ProviderStripe = "stripe"
)

// Success and failure event types delivered by the PSP. Failure events are
// logged on the payment row only and never move invoice status.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventPaymentCanceled   = "payment_intent.canceled"
)

// IsSuccessEvent reports whether the event type advances settlement.
func IsSuccessEvent(eventType string) bool {
	return eventType == EventCheckoutCompleted || eventType == EventPaymentSucceeded
}

// IsFailureEvent reports whether the event type is a recognized failure.
func IsFailureEvent(eventType string) bool {
	switch eventType {
	case EventCheckoutExpired, EventPaymentFailed, EventPaymentCanceled:
		return true
	}
	return false
}

// WebhookEvent is the normalized PSP event the settlement core consumes.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		PaymentID         string          `json:"paymentId,omitempty"`
		CheckoutSessionID string          `json:"checkoutSessionId,omitempty"`
		Amount            decimal.Decimal `json:"amount,omitempty"`
		Currency          string          `json:"currency,omitempty"`
		Metadata          struct {
			InvoiceID string `json:"invoiceId"`
		} `json:"metadata"`
	} `json:"data"`
	Raw json.RawMessage `json:"-"`
}

// Checkout is the result of creating a hosted checkout at the provider.
type Checkout struct {
	ProviderPaymentID string
	CheckoutURL       string
	ExpiresAt         time.Time
}

// PaymentGateway is implemented once per provider. Providers are selected by
// the factory, never by type switching at call sites.
type PaymentGateway interface {
	Provider() string
	CreateCheckout(ctx context.Context, invoiceID int64, invoiceNumber string, amount decimal.Decimal, currency string) (*Checkout, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
	GetStatus(ctx context.Context, providerPaymentID string) (string, error)
}

// Factory holds the configured gateways keyed by provider.
type Factory struct {
	gateways map[string]PaymentGateway
}

func NewFactory(gateways ...PaymentGateway) *Factory {
	f := &Factory{gateways: make(map[string]PaymentGateway)}
	for _, g := range gateways {
		f.gateways[g.Provider()] = g
	}
	return f
}

// Gateway returns the adapter for a provider.
func (f *Factory) Gateway(provider string) (PaymentGateway, error) {
	g, ok := f.gateways[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown provider %q", provider)
	}
	return g, nil
}

// GatewayError wraps a non-2xx provider response.
type GatewayError struct {
	Provider   string
	StatusCode int
	Status     string
	Body       string
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	bt := strings.TrimSpace(e.Body)
	if bt == "" {
		return fmt.Sprintf("%s error: %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s error: %s: %s", e.Provider, e.Status, bt)
}
