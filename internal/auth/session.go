package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL makes session tokens effectively non-expiring (100 years).
const DefaultSessionTTL = 876000 * time.Hour

var (
	ErrMissingSecret        = errors.New("session signing secret is required")
	ErrInvalidSessionToken  = errors.New("invalid session token")
	ErrSessionTokenExpired  = errors.New("session token has expired")
	errMissingSessionClaims = errors.New("session token is missing identity claims")
)

// Claims are the identity attributes carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"userId"`
	Email     string `json:"email"`
}

// TokenCodec issues and verifies HS256 session tokens with a fixed secret.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec constructs a codec signing with secret. A zero ttl selects
// DefaultSessionTTL.
func NewTokenCodec(secret []byte, ttl time.Duration) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenCodec{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token identifying accountID and email.
func (c *TokenCodec) Issue(accountID, email string) (string, error) {
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		AccountID: accountID,
		Email:     email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks the signature and expiry of tokenString and returns its claims.
func (c *TokenCodec) Verify(tokenString string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	claims := Claims{}
	token, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrSessionTokenExpired
		}
		return Claims{}, errors.Join(ErrInvalidSessionToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.AccountID) == "" || claims.Subject != claims.AccountID {
		return Claims{}, errors.Join(ErrInvalidSessionToken, errMissingSessionClaims)
	}
	return claims, nil
}
