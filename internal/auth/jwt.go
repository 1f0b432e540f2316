package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer          = "craft-server-manager"
	defaultTokenLifetime = 12 * time.Hour
)

var ErrTokenRevoked = errors.New("token has been revoked")

// Claims carried by an access token. Role is informational, requests are
// authorized against the account's current role.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and checks HS256 access tokens. Revoked token IDs are
// held in memory until the token would have expired anyway.
type JWTManager struct {
	secret   []byte
	lifetime time.Duration
	parser   *jwt.Parser

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewJWTManager creates a manager. A non-positive lifetime means 12h.
func NewJWTManager(secret string, lifetime time.Duration) *JWTManager {
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return &JWTManager{
		secret:   []byte(secret),
		lifetime: lifetime,
		parser: jwt.NewParser(
			jwt.WithIssuer(tokenIssuer),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		),
		revoked: make(map[string]time.Time),
	}
}

// GenerateAccessToken issues a token for username and returns its expiry
func (m *JWTManager) GenerateAccessToken(username, role string) (string, time.Time, error) {
	issued := time.Now()
	expires := issued.Add(m.lifetime)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// ValidateAccessToken verifies signature, issuer and lifetime and rejects
// revoked tokens
func (m *JWTManager) ValidateAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := m.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	_, revoked := m.revoked[claims.ID]
	m.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke rejects claims' token from now on
func (m *JWTManager) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	expires := time.Now().Add(m.lifetime)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, until := range m.revoked {
		if now.After(until) {
			delete(m.revoked, id)
		}
	}
	m.revoked[claims.ID] = expires
}
