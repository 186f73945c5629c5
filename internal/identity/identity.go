// Package identity resolves the signed-in user from a bearer token.
//
// The backend verifies HS256 signatures with Verifier. The storefront only
// needs to know who it is acting for and decodes claims without verifying
// them via UserIDFromToken; the backend remains the authority.
package identity

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by Verifier.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// RoleAdmin grants access to order administration.
const RoleAdmin = "admin"

// Claims are the token claims the storefront issues. Older tokens carry the
// user id as "id" or "_id" instead of "userId".
type Claims struct {
	UserID   string `json:"userId,omitempty"`
	LegacyID string `json:"id,omitempty"`
	MongoID  string `json:"_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// User returns the user id, trying userId, id, _id and then sub.
func (c *Claims) User() string {
	for _, v := range []string{c.UserID, c.LegacyID, c.MongoID, c.Subject} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Identity is an authenticated principal.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the principal may administer orders.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Verifier validates HS256 tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the signature and expiry and returns the principal.
func (v *Verifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.User() == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.User(), Role: claims.Role}, nil
}

// Issue signs a token for userID. Used by tooling and tests; login itself
// lives elsewhere.
func (v *Verifier) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}

// UserIDFromToken decodes token without verifying it and returns the user
// id. Any decode failure means "no identity": ok is false and no error is
// raised.
func UserIDFromToken(token string) (userID string, ok bool) {
	if token == "" {
		return "", false
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", false
	}
	id := claims.User()
	return id, id != ""
}
