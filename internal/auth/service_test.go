package auth

import (
	"testing"
	"time"

	"github.com/abduss/goupload/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "access-secret"

func mintToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateAccessToken(t *testing.T) {
	service := NewService(config.AuthConfig{AccessTokenSecret: testSecret})

	userID := uuid.New()
	now := time.Now()
	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub":      userID.String(),
		"email":    "user@example.com",
		"is_admin": true,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Minute).Unix(),
	})

	claims, err := service.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user id %s, got %s", userID, claims.UserID)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if !claims.IsAdmin {
		t.Fatalf("expected admin claim to survive")
	}
}

func TestValidateAccessTokenExpired(t *testing.T) {
	service := NewService(config.AuthConfig{AccessTokenSecret: testSecret})

	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	if _, err := service.ValidateAccessToken(token); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	service := NewService(config.AuthConfig{AccessTokenSecret: testSecret})

	token := mintToken(t, "some-other-secret", jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	if _, err := service.ValidateAccessToken(token); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for wrong signature, got %v", err)
	}
}

func TestValidateAccessTokenMissingSubject(t *testing.T) {
	service := NewService(config.AuthConfig{AccessTokenSecret: testSecret})

	token := mintToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	if _, err := service.ValidateAccessToken(token); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for missing sub, got %v", err)
	}
}

func TestValidateAccessTokenGarbage(t *testing.T) {
	service := NewService(config.AuthConfig{AccessTokenSecret: testSecret})

	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := service.ValidateAccessToken(token); err != ErrUnauthorized {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", token, err)
		}
	}
}

func TestValidateAccessTokenClockSkew(t *testing.T) {
	service := NewService(config.AuthConfig{AccessTokenSecret: testSecret})
	// Сдвигаем часы сервиса за exp токена
	service.nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }

	token := mintToken(t, testSecret, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := service.ValidateAccessToken(token); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized once service clock passes exp, got %v", err)
	}
}
