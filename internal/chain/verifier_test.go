package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

const usdcArbitrum = "0xaf88d065e77c8cc2239327c5edb3a432268e5831"

func rpcServer(t *testing.T, blockNumber string, receiptStatus string, headHex string, logs []rpcLog) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		var result any
		switch req.Method {
		case "eth_getTransactionByHash":
			var bn *string
			if blockNumber != "" {
				bn = &blockNumber
			}
			result = rpcTransaction{Hash: req.Params[0].(string), BlockNumber: bn}
		case "eth_getTransactionReceipt":
			result = rpcReceipt{Status: receiptStatus, Logs: logs}
		case "eth_blockNumber":
			result = headHex
		default:
			t.Fatalf("unexpected rpc method %s", req.Method)
		}
		raw, _ := json.Marshal(result)
		_ = json.NewEncoder(w).Encode(rpcResponse{Result: raw})
	}))
}

func transferLog(contract, from, to string, rawValue string) rpcLog {
	pad := func(addr string) string {
		return "0x000000000000000000000000" + addr[2:]
	}
	return rpcLog{
		Address: contract,
		Topics:  []string{transferTopic, pad(from), pad(to)},
		Data:    rawValue,
	}
}

func TestVerifyTransactionConfirmed(t *testing.T) {
	from := "0x1111111111111111111111111111111111111111"
	to := "0x2222222222222222222222222222222222222222"
	// 143 USDC = 143000000 raw = 0x88601c0
	srv := rpcServer(t, "0x64", "0x1", "0x78", []rpcLog{transferLog(usdcArbitrum, from, to, "0x88601c0")})
	defer srv.Close()

	v, err := NewVerifier(Arbitrum, srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	info, err := v.VerifyTransaction(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if info.Status != TxConfirmed {
		t.Fatalf("expected confirmed, got %s", info.Status)
	}
	if info.Confirmations != 20 {
		t.Fatalf("expected 20 confirmations (0x78-0x64), got %d", info.Confirmations)
	}
	if info.Asset != "USDC" {
		t.Fatalf("expected USDC, got %s", info.Asset)
	}
	if !info.Amount.Equal(decimal.RequireFromString("143")) {
		t.Fatalf("expected amount 143, got %s", info.Amount)
	}
	if info.From != from || info.To != to {
		t.Fatalf("address mismatch: %s -> %s", info.From, info.To)
	}
}

func TestVerifyTransactionPendingBelowThreshold(t *testing.T) {
	from := "0x1111111111111111111111111111111111111111"
	to := "0x2222222222222222222222222222222222222222"
	// 5 confirmations on arbitrum (threshold 12)
	srv := rpcServer(t, "0x64", "0x1", "0x69", []rpcLog{transferLog(usdcArbitrum, from, to, "0xf4240")})
	defer srv.Close()

	v, _ := NewVerifier(Arbitrum, srv.URL, srv.Client(), nil)
	info, err := v.VerifyTransaction(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if info.Status != TxPending {
		t.Fatalf("expected pending, got %s", info.Status)
	}
	if info.Confirmations != 5 {
		t.Fatalf("expected 5 confirmations, got %d", info.Confirmations)
	}
}

func TestVerifyTransactionReverted(t *testing.T) {
	srv := rpcServer(t, "0x64", "0x0", "0x78", nil)
	defer srv.Close()

	v, _ := NewVerifier(Base, srv.URL, srv.Client(), nil)
	info, err := v.VerifyTransaction(context.Background(), "0xdead")
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if info.Status != TxFailed {
		t.Fatalf("expected failed, got %s", info.Status)
	}
}

func TestVerifyTransactionStillInMempool(t *testing.T) {
	srv := rpcServer(t, "", "0x1", "0x78", nil)
	defer srv.Close()

	v, _ := NewVerifier(Polygon, srv.URL, srv.Client(), nil)
	info, err := v.VerifyTransaction(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if info.Status != TxPending || info.Confirmations != 0 {
		t.Fatalf("mempool tx should be pending with 0 confirmations, got %s/%d", info.Status, info.Confirmations)
	}
}

func TestVerifyTransactionUnknownContract(t *testing.T) {
	from := "0x1111111111111111111111111111111111111111"
	to := "0x2222222222222222222222222222222222222222"
	srv := rpcServer(t, "0x64", "0x1", "0x78", []rpcLog{transferLog("0x000000000000000000000000000000000000dead", from, to, "0xf4240")})
	defer srv.Close()

	v, _ := NewVerifier(Arbitrum, srv.URL, srv.Client(), nil)
	if _, err := v.VerifyTransaction(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected error for transfer against unknown contract")
	}
}

func TestTopicAddress(t *testing.T) {
	topic := "0x0000000000000000000000001111111111111111111111111111111111111111"
	if got := topicAddress(topic); got != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("topicAddress: got %s", got)
	}
}

func TestParseHexUint(t *testing.T) {
	n, err := parseHexUint("0x88601c0")
	if err != nil {
		t.Fatalf("parseHexUint: %v", err)
	}
	if n != 143000000 {
		t.Fatalf("expected 143000000, got %d", n)
	}
	if _, err := parseHexUint("0x"); err == nil {
		t.Fatal("expected error for empty quantity")
	}
	if _, err := parseHexUint(fmt.Sprintf("0x%x0", int64(1)<<62)); err == nil {
		t.Fatal("expected error for out-of-range quantity")
	}
}

func TestRegistry(t *testing.T) {
	srv := rpcServer(t, "", "0x1", "0x1", nil)
	defer srv.Close()

	reg := NewRegistry()
	v, _ := NewVerifier(Arbitrum, srv.URL, srv.Client(), nil)
	reg.Add(v)

	got, err := reg.Verifier("ARBITRUM")
	if err != nil {
		t.Fatalf("Verifier: %v", err)
	}
	if got != v {
		t.Fatal("registry returned a different verifier")
	}
	if _, err := reg.Verifier("base"); err == nil {
		t.Fatal("expected error for unregistered chain")
	}
}
