package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mzaikin/dbportal/internal/model"
)

// Claims represents auth token claims with the owning user ID.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
}

// JWT implements TokenManager backed by symmetric HMAC. The token's
// expiry carries the session's absolute lifetime; the rolling inactivity
// window is enforced separately against the session record.
type JWT struct {
	secretKey string
	lifetime  time.Duration
}

// NewJWT creates a new JWT token manager with the provided secret key and
// absolute lifetime.
func NewJWT(secretKey string, lifetime time.Duration) model.TokenManager {
	return &JWT{secretKey: secretKey, lifetime: lifetime}
}

// Generate creates a signed auth token for the user.
func (j *JWT) Generate(userID uuid.UUID) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.lifetime)),
		},
		UserID: userID,
	})

	tokenString, err := t.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign auth token: %w", err)
	}

	return tokenString, nil
}

// Parse validates the token and extracts the user ID. An elapsed absolute
// lifetime surfaces as model.ErrSessionExpired.
func (j *JWT) Parse(tokenString string) (uuid.UUID, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, model.ErrSessionExpired
		}
		return uuid.Nil, fmt.Errorf("failed to parse auth token: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("auth token is invalid")
	}
	return claims.UserID, nil
}
