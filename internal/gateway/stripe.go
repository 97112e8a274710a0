package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/money"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string

	// Where the payer lands after checkout (front end).
	SuccessURL string
	CancelURL  string

	// Base API endpoint, overridable for tests.
	BaseURL string

	// Signed webhooks older than this are rejected.
	Tolerance time.Duration

	Client *http.Client
	Logger *slog.Logger
}

type StripeGateway struct {
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
	baseURL       string
	tolerance     time.Duration

	httpClient *http.Client
	logger     *slog.Logger

	now func() time.Time
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" || strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("stripe: secret_key and webhook_secret are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &StripeGateway{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		baseURL:       baseURL,
		tolerance:     tolerance,
		httpClient:    client,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *StripeGateway) Provider() string { return ProviderStripe }

// CreateCheckout creates a hosted checkout session for the invoice. The
// invoice id rides along in session metadata so the webhook can correlate.
func (s *StripeGateway) CreateCheckout(ctx context.Context, invoiceID int64, invoiceNumber string, amount decimal.Decimal, currency string) (*Checkout, error) {
	logger := s.logger.With("op", "CreateCheckout", "invoice", invoiceID)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", s.successURL)
	form.Set("cancel_url", s.cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	form.Set("line_items[0][price_data][product_data][name]", "Invoice "+invoiceNumber)
	// Stripe expects the minor unit; zero-decimal currencies are not shifted
	form.Set("line_items[0][price_data][unit_amount]", money.MinorUnits(amount, currency))
	form.Set("metadata[invoiceId]", strconv.FormatInt(invoiceID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{Provider: ProviderStripe, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}

	var out struct {
		ID        string `json:"id"`
		URL       string `json:"url"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if out.ID == "" || out.URL == "" {
		return nil, errors.New("stripe: empty session id or url")
	}
	logger.Info("checkout session created", "session", out.ID)
	return &Checkout{
		ProviderPaymentID: out.ID,
		CheckoutURL:       out.URL,
		ExpiresAt:         time.Unix(out.ExpiresAt, 0),
	}, nil
}

// VerifyWebhook checks the signature header (t=...,v1=...) against
// HMAC-SHA256 of "<timestamp>.<payload>" and parses the event.
func (s *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	ts, sigs, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	at := time.Unix(ts, 0)
	if s.now().Sub(at) > s.tolerance {
		return nil, fmt.Errorf("stripe: webhook timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	valid := false
	for _, sig := range sigs {
		sigBytes, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, sigBytes) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, errors.New("stripe: webhook signature mismatch")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, errors.New("stripe: webhook event missing id or type")
	}
	event.Raw = json.RawMessage(payload)
	return &event, nil
}

// GetStatus fetches the current provider-side status of a checkout session.
func (s *StripeGateway) GetStatus(ctx context.Context, providerPaymentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/checkout/sessions/"+url.PathEscape(providerPaymentID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stripe status request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &GatewayError{Provider: ProviderStripe, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}
	var out struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode session status: %w", err)
	}
	return out.PaymentStatus, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, errors.New("stripe: missing signature header")
	}
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			n, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("stripe: bad signature timestamp: %w", err)
			}
			ts = n
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, errors.New("stripe: signature header missing t or v1")
	}
	return ts, sigs, nil
}
