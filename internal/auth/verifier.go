package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier validates HS256 bearer tokens carrying the authenticated user id.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier from the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// ValidateToken verifies the JWT and returns the authenticated user id.
func (v *Verifier) ValidateToken(token string) (int, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return c.UserID, nil
}

// Sign issues a token for the given user id. Used by tests and local tooling;
// production tokens come from the identity service sharing the secret.
func (v *Verifier) Sign(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{UserID: userID})
	return token.SignedString(v.secret)
}
