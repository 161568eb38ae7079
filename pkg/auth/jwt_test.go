package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func TestSessionToken_RoundTrip(t *testing.T) {
	token, issued, err := NewSessionToken("user-1", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken: %v", err)
	}

	claims, err := Parse(token, testSecret)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.SessionID() == "" || claims.SessionID() != issued.SessionID() {
		t.Fatalf("session id mismatch: %q vs %q", claims.SessionID(), issued.SessionID())
	}
}

func TestParse_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewSessionToken("user-1", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token, "other-secret"); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	token, _, err := NewSessionToken("user-1", testSecret, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token, testSecret); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestParse_RejectsMissingSubject(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        "jti",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		Audience:  []string{audience},
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token, testSecret); err == nil {
		t.Fatal("expected error for token without subject")
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "a.b.c"} {
		if _, err := Parse(in, testSecret); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}
