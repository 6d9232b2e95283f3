/**
 * @description
 * HTTP middleware for the ledger service API.
 *
 * Member-facing routes are authenticated with RS256 JWTs issued by the
 * platform's identity provider. The middleware fetches the provider's JWKS,
 * verifies the token signature and expiry, and stores the authenticated
 * user id on the request context for handlers to read.
 *
 * Internal routes (admin adjustments, association reports) are called
 * service-to-service and are guarded by a shared API key instead.
 */

package api

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// UserIDContextKey is the context key under which the authenticated
// user's id is stored.
const UserIDContextKey contextKey = "userID"

// JWKS represents a JSON Web Key Set returned by the identity provider.
type JWKS struct {
	Keys []JSONWebKey `json:"keys"`
}

// JSONWebKey represents a single key in a JWKS.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// AuthMiddleware validates the Bearer token on incoming requests against
// the identity provider's JWKS and injects the user id into the request
// context. Requests without a valid token are rejected with 401.
func AuthMiddleware(jwksURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}
			tokenString := parts[1]

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("token missing kid header")
				}

				publicKey, err := getPublicKeyFromJWKS(jwksURL, kid)
				if err != nil {
					return nil, fmt.Errorf("failed to get public key: %w", err)
				}
				return publicKey, nil
			})
			if err != nil {
				log.Printf("level=warn component=api msg=\"token validation failed\" error=%v", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			userID, ok := claims["sub"].(string)
			if !ok || userID == "" {
				http.Error(w, "Token missing subject", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalAuthMiddleware guards service-to-service routes with a shared
// API key passed in the X-Internal-Api-Key header.
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				log.Printf("level=error component=api msg=\"internal api key not configured, rejecting request\"")
				http.Error(w, "Internal API not configured", http.StatusServiceUnavailable)
				return
			}
			provided := r.Header.Get("X-Internal-Api-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAuthenticatedUserID extracts the authenticated user's id from the
// request context. Returns false if the request did not pass through
// AuthMiddleware.
func GetAuthenticatedUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok
}

var (
	jwksCacheMu   sync.Mutex
	jwksCache     *JWKS
	jwksCacheTime time.Time
	jwksCacheTTL  = 1 * time.Hour
)

// getPublicKeyFromJWKS fetches the JWKS from the identity provider and
// returns the RSA public key matching the given kid. The key set is
// cached for an hour to avoid hitting the provider on every request.
// The mutex covers the whole check-fetch-store sequence; concurrent
// request handlers all call through here.
func getPublicKeyFromJWKS(jwksURL, kid string) (*rsa.PublicKey, error) {
	jwksCacheMu.Lock()
	defer jwksCacheMu.Unlock()

	if jwksCache == nil || time.Since(jwksCacheTime) > jwksCacheTTL {
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
		}

		var jwks JWKS
		if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
			return nil, fmt.Errorf("failed to decode JWKS: %w", err)
		}

		jwksCache = &jwks
		jwksCacheTime = time.Now()
	}

	for _, key := range jwksCache.Keys {
		if key.Kid == kid {
			return parseRSAPublicKey(key)
		}
	}

	return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
}

// parseRSAPublicKey converts a JWK into an rsa.PublicKey.
func parseRSAPublicKey(key JSONWebKey) (*rsa.PublicKey, error) {
	if key.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type: %s", key.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
