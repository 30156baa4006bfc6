// Package auth provides JWT bearer authentication for the admin API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims carried by admin tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Username is the authenticated admin user.
	Username string `json:"username"`
}

// ErrInvalidToken covers every validation failure; callers only need
// to know the token was not acceptable.
var ErrInvalidToken = errors.New("auth: invalid token")

// JWTService issues and validates admin tokens.
type JWTService struct {
	secret    []byte
	accessTTL time.Duration
}

// NewJWTService builds a service around the shared secret. ttl <= 0
// defaults to one hour.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTService{secret: []byte(secret), accessTTL: ttl}
}

// IssueToken returns a signed access token for username.
func (s *JWTService) IssueToken(username string) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(s.accessTTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			Issuer:    "fixgate",
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiry, nil
}

// ValidateToken parses and verifies a token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
