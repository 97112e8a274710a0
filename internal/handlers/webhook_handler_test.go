package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"paydesk/internal/gateway"
	"paydesk/internal/services"
)

type memWebhookLedger struct {
	seen map[string]bool
}

func (m *memWebhookLedger) IsProcessed(_ context.Context, provider, eventID string) (bool, error) {
	return m.seen[provider+"/"+eventID], nil
}

func (m *memWebhookLedger) MarkProcessed(_ context.Context, provider, eventID string, _ json.RawMessage) (bool, error) {
	key := provider + "/" + eventID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

type recordingCoordinator struct {
	settled   []int64
	failed    []int64
	settleErr error
}

func (c *recordingCoordinator) Settle(_ context.Context, invoiceID int64, _ services.Signal) (bool, error) {
	if c.settleErr != nil {
		return false, c.settleErr
	}
	c.settled = append(c.settled, invoiceID)
	return true, nil
}

func (c *recordingCoordinator) RecordFailure(_ context.Context, invoiceID int64, _ string) error {
	c.failed = append(c.failed, invoiceID)
	return nil
}

func stripeSignature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookHarness(t *testing.T) (*WebhookHandler, *recordingCoordinator) {
	t.Helper()
	gw, err := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		SuccessURL:    "https://app.example/paid",
		CancelURL:     "https://app.example/cancel",
	})
	if err != nil {
		t.Fatalf("NewStripeGateway: %v", err)
	}
	coord := &recordingCoordinator{}
	h := &WebhookHandler{
		Gateways:    gateway.NewFactory(gw),
		Idempotency: services.NewIdempotencyService(&memWebhookLedger{seen: make(map[string]bool)}),
		Settlement:  coord,
		Logger:      slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)),
	}
	return h, coord
}

func postWebhook(t *testing.T, h *WebhookHandler, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe?:provider=stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.HandleProviderWebhook(rec, req)
	return rec
}

func TestHandleProviderWebhookSettles(t *testing.T) {
	h, coord := newWebhookHarness(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"checkoutSessionId":"cs_1","amount":"143.00","currency":"USD","metadata":{"invoiceId":"42"}}}`)

	rec := postWebhook(t, h, payload, stripeSignature("whsec_test", time.Now().Unix(), payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(coord.settled) != 1 || coord.settled[0] != 42 {
		t.Fatalf("settled = %v; want [42]", coord.settled)
	}
}

func TestHandleProviderWebhookDuplicateDelivery(t *testing.T) {
	h, coord := newWebhookHarness(t)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"paymentId":"pi_1","amount":"10.00","currency":"USD","metadata":{"invoiceId":"7"}}}`)
	sig := stripeSignature("whsec_test", time.Now().Unix(), payload)

	for i := 0; i < 3; i++ {
		if rec := postWebhook(t, h, payload, sig); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d", i, rec.Code)
		}
	}
	if len(coord.settled) != 1 {
		t.Fatalf("settle ran %d times; want 1", len(coord.settled))
	}
}

func TestHandleProviderWebhookBadSignature(t *testing.T) {
	h, coord := newWebhookHarness(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"metadata":{"invoiceId":"42"}}}`)

	rec := postWebhook(t, h, payload, stripeSignature("wrong_secret", time.Now().Unix(), payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
	if len(coord.settled) != 0 {
		t.Fatal("settlement must not run on a bad signature")
	}
}

func TestHandleProviderWebhookFailureEvent(t *testing.T) {
	h, coord := newWebhookHarness(t)
	payload := []byte(`{"id":"evt_9","type":"payment_intent.payment_failed","data":{"paymentId":"pi_9","metadata":{"invoiceId":"12"}}}`)

	rec := postWebhook(t, h, payload, stripeSignature("whsec_test", time.Now().Unix(), payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(coord.failed) != 1 || coord.failed[0] != 12 {
		t.Fatalf("failed = %v; want [12]", coord.failed)
	}
	if len(coord.settled) != 0 {
		t.Fatal("failure events must never settle")
	}
}

func TestHandleProviderWebhookUnknownEventAcked(t *testing.T) {
	h, coord := newWebhookHarness(t)
	payload := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"metadata":{"invoiceId":"42"}}}`)

	rec := postWebhook(t, h, payload, stripeSignature("whsec_test", time.Now().Unix(), payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 ack", rec.Code)
	}
	if len(coord.settled)+len(coord.failed) != 0 {
		t.Fatal("unknown events must not touch settlement")
	}
}

func TestHandleProviderWebhookUnknownProvider(t *testing.T) {
	h, _ := newWebhookHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/paypal?:provider=paypal", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.HandleProviderWebhook(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", rec.Code)
	}
}
