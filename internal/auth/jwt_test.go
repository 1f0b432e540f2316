package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManagerGenerateAndValidate(t *testing.T) {
	manager := NewJWTManager("test-secret", 10*time.Minute)

	token, expires, err := manager.GenerateAccessToken("tester", RoleOperator)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token to be generated")
	}
	if time.Until(expires) < 9*time.Minute {
		t.Fatalf("unexpected expiry: %v", expires)
	}

	claims, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("failed to validate access token: %v", err)
	}
	if claims.Username != "tester" || claims.Role != RoleOperator || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTManagerRejectsForeignAndExpiredTokens(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Minute)
	other := NewJWTManager("other-secret", time.Minute)

	token, _, err := other.GenerateAccessToken("tester", RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := manager.ValidateAccessToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}

	expired := NewJWTManager("test-secret", time.Nanosecond)
	token, _, err = expired.GenerateAccessToken("tester", RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := manager.ValidateAccessToken(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestJWTManagerRevoke(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Minute)

	token, _, err := manager.GenerateAccessToken("tester", RoleViewer)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	claims, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	manager.Revoke(claims)
	if _, err := manager.ValidateAccessToken(token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	fresh, _, err := manager.GenerateAccessToken("tester", RoleViewer)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := manager.ValidateAccessToken(fresh); err != nil {
		t.Fatalf("new token should still be valid: %v", err)
	}
}
