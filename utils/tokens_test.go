package utils

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	m, err := NewManager("test-signing-key")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.NewJWT(42, "user", time.Minute)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "user" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseExpiredToken(t *testing.T) {
	m, _ := NewManager("test-signing-key")
	token, err := m.NewJWT(1, "user", -time.Minute)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expired token should be rejected")
	}
}

func TestParseWrongKey(t *testing.T) {
	m, _ := NewManager("key-a")
	other, _ := NewManager("key-b")

	token, err := m.NewJWT(1, "user", time.Minute)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	if _, err := other.Parse(token); err == nil {
		t.Fatal("token signed with a different key should be rejected")
	}
}

func TestNewManagerEmptyKey(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatal("empty signing key should be rejected")
	}
}

func TestNewRefreshTokenUnique(t *testing.T) {
	m, _ := NewManager("k")
	a, err := m.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	b, _ := m.NewRefreshToken()
	if a == b || len(a) != 64 {
		t.Fatalf("tokens not random: %s / %s", a, b)
	}
}
