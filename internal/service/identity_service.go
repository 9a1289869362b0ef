package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-academy/internal/config"
)

// ErrMissingTaker is returned for tokens that carry no taker id.
var ErrMissingTaker = errors.New("token has no taker_id")

// TokenType distinguishes taker tokens from other tokens signed with the
// same secret.
type TokenType string

const TokenTypeTaker TokenType = "taker"

// Claims extends JWT standard claims with the taker identity.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	TakerID   string    `json:"taker_id"`
}

// IdentityService issues and validates taker tokens. The taker id is an
// opaque key; the engine performs no role checks.
type IdentityService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(cfg *config.Config) *IdentityService {
	return &IdentityService{
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.JWTExpiry,
		now:    time.Now,
	}
}

// IssueToken signs a taker token.
func (s *IdentityService) IssueToken(takerID string) (string, error) {
	if takerID == "" {
		return "", ErrMissingTaker
	}
	now := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   takerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		TokenType: TokenTypeTaker,
		TakerID:   takerID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a taker JWT, returning the claims.
func (s *IdentityService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != TokenTypeTaker {
		return nil, fmt.Errorf("unexpected token type %q", claims.TokenType)
	}
	if claims.TakerID == "" {
		return nil, ErrMissingTaker
	}
	return claims, nil
}
