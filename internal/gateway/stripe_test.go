package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func signPayload(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestGateway(t *testing.T, baseURL string) *StripeGateway {
	t.Helper()
	g, err := NewStripeGateway(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		SuccessURL:    "https://app.example/paid",
		CancelURL:     "https://app.example/cancel",
		BaseURL:       baseURL,
	})
	if err != nil {
		t.Fatalf("NewStripeGateway: %v", err)
	}
	return g
}

func TestVerifyWebhookValidSignature(t *testing.T) {
	g := newTestGateway(t, "http://unused")
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"checkoutSessionId":"cs_1","amount":"143.00","currency":"USD","metadata":{"invoiceId":"42"}}}`)
	ts := time.Now().Unix()

	event, err := g.VerifyWebhook(payload, signPayload("whsec_test", ts, payload))
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.ID != "evt_1" || event.Type != EventCheckoutCompleted {
		t.Fatalf("event mismatch: %+v", event)
	}
	if event.Data.Metadata.InvoiceID != "42" {
		t.Fatalf("expected invoice id 42, got %q", event.Data.Metadata.InvoiceID)
	}
	if !event.Data.Amount.Equal(decimal.RequireFromString("143.00")) {
		t.Fatalf("amount mismatch: %s", event.Data.Amount)
	}
}

func TestVerifyWebhookBadSignature(t *testing.T) {
	g := newTestGateway(t, "http://unused")
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{}}`)
	ts := time.Now().Unix()

	if _, err := g.VerifyWebhook(payload, signPayload("wrong_secret", ts, payload)); err == nil {
		t.Fatal("expected signature mismatch error")
	}
	if _, err := g.VerifyWebhook(payload, ""); err == nil {
		t.Fatal("expected error for missing header")
	}
	if _, err := g.VerifyWebhook(payload, "v1=deadbeef"); err == nil {
		t.Fatal("expected error for header without timestamp")
	}
}

func TestVerifyWebhookStaleTimestamp(t *testing.T) {
	g := newTestGateway(t, "http://unused")
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{}}`)
	stale := time.Now().Add(-time.Hour).Unix()

	if _, err := g.VerifyWebhook(payload, signPayload("whsec_test", stale, payload)); err == nil {
		t.Fatal("expected error for stale webhook timestamp")
	}
}

func TestCreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/sessions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostFormValue("line_items[0][price_data][unit_amount]"); got != "14300" {
			t.Fatalf("expected minor-unit amount 14300, got %q", got)
		}
		if got := r.PostFormValue("metadata[invoiceId]"); got != "42" {
			t.Fatalf("expected invoice metadata 42, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "cs_test_1",
			"url":        "https://checkout.example/cs_test_1",
			"expires_at": time.Now().Add(time.Hour).Unix(),
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	checkout, err := g.CreateCheckout(context.Background(), 42, "INV-202608-0001", decimal.RequireFromString("143.00"), "USD")
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if checkout.ProviderPaymentID != "cs_test_1" {
		t.Fatalf("session id mismatch: %q", checkout.ProviderPaymentID)
	}
	if checkout.CheckoutURL == "" {
		t.Fatal("expected checkout url")
	}
}

func TestCreateCheckoutZeroDecimalCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		// JPY has no minor unit, so ¥1000 must stay 1000
		if got := r.PostFormValue("line_items[0][price_data][unit_amount]"); got != "1000" {
			t.Fatalf("expected unit_amount 1000, got %q", got)
		}
		if got := r.PostFormValue("line_items[0][price_data][currency]"); got != "jpy" {
			t.Fatalf("expected currency jpy, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "cs_test_jpy",
			"url":        "https://checkout.example/cs_test_jpy",
			"expires_at": time.Now().Add(time.Hour).Unix(),
		})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	if _, err := g.CreateCheckout(context.Background(), 7, "INV-202608-0002", decimal.RequireFromString("1000"), "JPY"); err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"payment_status": "paid"})
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	status, err := g.GetStatus(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != "paid" {
		t.Fatalf("expected paid, got %q", status)
	}
}

func TestFactory(t *testing.T) {
	g := newTestGateway(t, "http://unused")
	f := NewFactory(g)

	got, err := f.Gateway("stripe")
	if err != nil {
		t.Fatalf("Gateway: %v", err)
	}
	if got.Provider() != ProviderStripe {
		t.Fatalf("provider mismatch: %s", got.Provider())
	}
	if _, err := f.Gateway("paypal"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestEventClassification(t *testing.T) {
	for _, et := range []string{EventCheckoutCompleted, EventPaymentSucceeded} {
		if !IsSuccessEvent(et) || IsFailureEvent(et) {
			t.Fatalf("%s should be a success event", et)
		}
	}
	for _, et := range []string{EventCheckoutExpired, EventPaymentFailed, EventPaymentCanceled} {
		if !IsFailureEvent(et) || IsSuccessEvent(et) {
			t.Fatalf("%s should be a failure event", et)
		}
	}
	if IsSuccessEvent("charge.refunded") || IsFailureEvent("charge.refunded") {
		t.Fatal("unrecognized events are neither success nor failure")
	}
}
