package principal

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal is the (uid, username, domain) triple produced from a validated
// access token; it is not persisted as part of this core.
type Principal struct {
	UID      string
	Username string
	Domain   string
}

// claims is the JWT claim set carried by both access and refresh tokens.
// Refresh tokens are signed with a distinct secret so a stolen access token
// cannot be replayed as a refresh token and vice versa.
type claims struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Domain   string `json:"domain"`
	jwt.RegisteredClaims
}

// TokenSigner issues and parses opaque access/refresh JWTs.
type TokenSigner struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenSigner builds a TokenSigner from distinct access/refresh secrets
// and lifetimes.
func NewTokenSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenSigner {
	return &TokenSigner{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL returns the access token lifetime, used as the role cache TTL.
func (s *TokenSigner) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccessToken signs an access token carrying p's claims.
func (s *TokenSigner) IssueAccessToken(p Principal) (string, error) {
	return s.sign(p, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a refresh token carrying p's claims, using the
// distinct refresh secret.
func (s *TokenSigner) IssueRefreshToken(p Principal) (string, error) {
	return s.sign(p, s.refreshSecret, s.refreshTTL)
}

func (s *TokenSigner) sign(p Principal, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		UID:      p.UID,
		Username: p.Username,
		Domain:   p.Domain,
		RegisteredClaims: jwt.RegisteredClaims{
			// A fresh token id keeps two tokens issued for the same principal
			// within the same second distinct.
			ID:        uuid.NewString(),
			Subject:   p.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies and decodes an access token.
func (s *TokenSigner) ParseAccessToken(token string) (Principal, error) {
	return s.parse(token, s.accessSecret)
}

// ParseRefreshToken verifies and decodes a refresh token.
func (s *TokenSigner) ParseRefreshToken(token string) (Principal, error) {
	return s.parse(token, s.refreshSecret)
}

func (s *TokenSigner) parse(tokenString string, secret []byte) (Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("parse token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}

	return Principal{UID: c.UID, Username: c.Username, Domain: c.Domain}, nil
}
