package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/pepae/BeerCoin-sub000/pkg/app/errors"
	apphttp "github.com/pepae/BeerCoin-sub000/pkg/app/http"
)

const adminSubject = "beercoin-admin"

// GenerateAdminToken mints an HS256 admin token for the given TTL.
// Operators generate these out of band and pass them as Bearer tokens
// to the /admin endpoints.
func GenerateAdminToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateAdminToken validates an HS256 admin token string.
func ValidateAdminToken(secret, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return fmt.Errorf("invalid admin token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != adminSubject {
		return fmt.Errorf("invalid admin token subject")
	}
	return nil
}

// AdminAuth returns chi-compatible middleware enforcing a valid admin
// Bearer token on every request it wraps.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "admin token required"))
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if err := ValidateAdminToken(secret, tokenString); err != nil {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid admin token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
