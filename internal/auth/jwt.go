// Package auth validates bearer session tokens issued by the identity
// provider and describes the resulting session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
)

// Claims are the token claims the API reads. Subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is the authenticated caller attached to a request.
type Session struct {
	UserID  string
	Email   string
	IsAdmin bool
}

var errNoSecret = errors.New("token secret not configured")

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier returns a Verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Enabled reports whether tokens can be verified at all.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses token and returns its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if !v.Enabled() {
		return nil, apperr.Wrap(errNoSecret, apperr.KindUnauthorized, "AUTH_DISABLED", "Authentication is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(err, apperr.KindUnauthorized, "TOKEN_EXPIRED", "Session expired")
		}
		return nil, apperr.Wrap(err, apperr.KindUnauthorized, "INVALID_TOKEN", "Invalid session token")
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "INVALID_TOKEN", "Token has no subject")
	}
	return claims, nil
}

// Sign issues a token for userID. Sessions come from the identity provider;
// this is for local development and tests.
func (v *Verifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errNoSecret
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
