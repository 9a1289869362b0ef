package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-academy/internal/config"
)

func newIdentity() *IdentityService {
	return NewIdentityService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func TestIssueAndValidateToken(t *testing.T) {
	ids := newIdentity()

	token, err := ids.IssueToken("taker-42")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ids.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TakerID != "taker-42" || claims.Subject != "taker-42" || claims.TokenType != TokenTypeTaker {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ids.IssueToken(""); !errors.Is(err, ErrMissingTaker) {
		t.Errorf("empty taker err = %v, want ErrMissingTaker", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	ids := newIdentity()

	other := NewIdentityService(&config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour})
	foreign, _ := other.IssueToken("u1")
	if _, err := ids.ValidateToken(foreign); err == nil {
		t.Error("token signed with another secret accepted")
	}

	ids.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := ids.IssueToken("u1")
	ids.now = time.Now
	if _, err := ids.ValidateToken(expired); err == nil {
		t.Error("expired token accepted")
	}

	wrongType := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TokenType:        "admin",
		TakerID:          "u1",
	})
	signed, _ := wrongType.SignedString([]byte("test-secret"))
	if _, err := ids.ValidateToken(signed); err == nil {
		t.Error("non-taker token accepted")
	}

	if _, err := ids.ValidateToken("not-a-jwt"); err == nil {
		t.Error("garbage token accepted")
	}
}
