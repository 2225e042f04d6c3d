package model

import "github.com/google/uuid"

// TokenManager signs and validates the auth token that bounds a session's
// absolute lifetime. The session cookie itself stays an opaque identifier;
// the token travels inside the server-side session record.
type TokenManager interface {
	Generate(userID uuid.UUID) (string, error)
	// Parse returns the user id, or an error when the signature is bad or
	// the absolute lifetime has elapsed.
	Parse(token string) (uuid.UUID, error)
}
