package auth

import (
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestNewSessionToken_RoundTrip(t *testing.T) {
	token, err := NewSessionToken("42", "ana@example.com", "Ana Paula", "instrutor", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := Parse(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID() != "42" || claims.Role != "instrutor" || claims.Email != "ana@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	token, _ := NewSessionToken("1", "a@b.com", "", "aluno", testSecret, time.Hour)
	if _, err := Parse(token, "other"); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParse_Expired(t *testing.T) {
	token, _ := NewSessionToken("1", "a@b.com", "", "aluno", testSecret, -time.Minute)
	if _, err := Parse(token, testSecret); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestPeekClaims(t *testing.T) {
	token, _ := NewSessionToken("7", "c@d.com", "Carlos", "aluno", testSecret, -time.Minute)

	claims, err := PeekClaims(token)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if claims.UserID() != "7" {
		t.Fatalf("expected subject 7, got %q", claims.UserID())
	}
	if !claims.Expired(time.Now()) {
		t.Fatal("expected expired token")
	}

	if _, err := PeekClaims("not-a-token"); err == nil {
		t.Fatal("expected malformed token error")
	}
}
