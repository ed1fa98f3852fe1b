// Package authtest mints identity-provider tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

const Secret = "test-secret"

func Token(t testing.TB, email string) string {
	t.Helper()

	claims := auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func Bearer(t testing.TB, email string) string {
	return "Bearer " + Token(t, email)
}

func Verifier() *auth.JWTVerifier {
	return auth.NewJWTVerifier(Secret, "")
}
