package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bundleworks/stockpilot/pkg/api"
)

// SessionValidator validates embedded-app session tokens. Shopify signs them
// with the app's API secret (HS256); the audience claim carries the app API
// key and the dest claim names the shop the session belongs to.
type SessionValidator struct {
	apiKey     string
	apiSecret  []byte
	shopDomain string
}

// SessionClaims are the claims carried by a Shopify session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Dest string `json:"dest"`
}

// Shop returns the shop domain the token was issued for.
func (c *SessionClaims) Shop() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.Dest, "https://"), "http://")
}

// NewSessionValidator creates a validator bound to one app and shop.
func NewSessionValidator(apiKey, apiSecret, shopDomain string) *SessionValidator {
	return &SessionValidator{
		apiKey:     apiKey,
		apiSecret:  []byte(apiSecret),
		shopDomain: shopDomain,
	}
}

// Validate parses and validates a session token string.
func (v *SessionValidator) Validate(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (any, error) { return v.apiSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(v.apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("session token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	if v.shopDomain != "" && claims.Shop() != v.shopDomain {
		return nil, fmt.Errorf("session token issued for shop %q", claims.Shop())
	}
	return claims, nil
}

// NewMiddleware creates session auth middleware for the operator endpoints.
// If validator is nil, all requests are rejected (fail closed).
func NewMiddleware(validator *SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				api.WriteUnauthorized(w, "Authentication not configured")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, "Invalid or expired session token")
				return
			}
			if claims.Subject == "" {
				api.WriteUnauthorized(w, "Token subject is required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
