package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenInvalid is returned for a missing, malformed, expired, or
// wrongly signed bearer token.
var ErrTokenInvalid = errors.New("api: invalid token")

// defaultTokenTTL applies when IssueToken is given a non-positive TTL.
const defaultTokenTTL = 15 * time.Minute

// Claims are the bearer token claims accepted by the status server.
type Claims struct {
	jwt.RegisteredClaims
	// DeviceID restricts the token to one device.
	DeviceID string `json:"did"`
}

// IssueToken signs an HS256 token for subject that is valid for ttl on deviceID.
func IssueToken(secret, subject, deviceID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		DeviceID: deviceID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, expiry, subject, and device binding.
func ParseToken(tokenString, secret, deviceID string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: issued for device %q", ErrTokenInvalid, claims.DeviceID)
	}
	return claims, nil
}

// authMiddleware requires a bearer token when a token secret is configured.
// The stream endpoint may pass the token as ?token= since browsers cannot
// set headers on a websocket upgrade.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.TokenSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			writeUnauthorized(w, "bearer token required")
			return
		}

		claims, err := ParseToken(raw, s.cfg.TokenSecret, s.device.DeviceID())
		if err != nil {
			s.logger.Debug("rejected token", "error", err, "request_id", requestIDFrom(r.Context()))
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		s.logger.Debug("token accepted", "subject", claims.Subject, "request_id", requestIDFrom(r.Context()))
		next.ServeHTTP(w, r)
	})
}
