package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testTokenService() TokenService {
	return TokenService{
		Secret:   []byte("test-secret"),
		Issuer:   "nekostream",
		Duration: time.Hour,
	}
}

func TestSignParseRoundTrip(t *testing.T) {
	ts := testTokenService()
	u := &User{ID: "u1", Username: "alice", Role: "admin"}

	tok, exp, err := ts.Sign(u)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatal("expiry should be in the future")
	}

	claims, err := ts.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if !claims.IsAdmin() {
		t.Fatal("role claim lost")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	ts := testTokenService()
	tok, _, err := ts.Sign(&User{ID: "u1", Username: "alice", Role: "user"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := TokenService{Secret: []byte("different"), Issuer: ts.Issuer, Duration: ts.Duration}
	if _, err := other.Parse(tok); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	ts := testTokenService()
	ts.Duration = -time.Minute

	tok, _, err := ts.Sign(&User{ID: "u1", Username: "alice", Role: "user"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ts.Parse(tok); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestParseRejectsForeignAlgorithm(t *testing.T) {
	ts := testTokenService()

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS384, Claims{
		UserID:   "u1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := foreign.SignedString(ts.Secret)
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}

	if _, err := ts.Parse(s); err == nil {
		t.Fatal("non-HS256 token must be rejected even with the right secret")
	}
}
