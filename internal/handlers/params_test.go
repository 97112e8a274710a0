package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetParamColonPrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/invoices/7?:id=7", nil)
	if got := getParam(req, "id"); got != "7" {
		t.Fatalf("got %q; want 7", got)
	}
}

func TestGetParamPlainQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/invoices?id=9", nil)
	if got := getParam(req, "id"); got != "9" {
		t.Fatalf("got %q; want 9", got)
	}
}

func TestParseIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/invoices/7?:id=7", nil)
	id, err := parseIDParam(req, "id")
	if err != nil || id != 7 {
		t.Fatalf("id=%d err=%v", id, err)
	}

	for _, raw := range []string{"abc", "-1", "0", ""} {
		req := httptest.NewRequest(http.MethodGet, "/invoices/x?:id="+raw, nil)
		if _, err := parseIDParam(req, "id"); err == nil {
			t.Fatalf("id %q should be rejected", raw)
		}
	}
}

func TestParseDateRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stats?from=2026-01-01&to=2026-03-31", nil)
	from, to, err := parseDateRange(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if from == nil || to == nil {
		t.Fatal("expected both bounds")
	}
	if from.Format("2006-01-02") != "2026-01-01" {
		t.Fatalf("from = %s", from)
	}
	// The to bound covers its whole day.
	if to.Format("2006-01-02 15:04:05") != "2026-03-31 23:59:59" {
		t.Fatalf("to = %s", to)
	}
}

func TestParseDateRangeInverted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stats?from=2026-03-01&to=2026-01-01", nil)
	if _, _, err := parseDateRange(req); err == nil {
		t.Fatal("inverted range should be rejected")
	}
}

func TestUserIDContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := UserIDFromContext(req.Context()); ok {
		t.Fatal("no user id should be present")
	}
	ctx := WithUserID(req.Context(), 42)
	id, ok := UserIDFromContext(ctx)
	if !ok || id != 42 {
		t.Fatalf("id=%d ok=%v", id, ok)
	}
}
