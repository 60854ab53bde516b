// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// DefaultIssuer is the iss claim used when none is configured.
const DefaultIssuer = "holoauth"

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

// Token types carried in the type claim.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload for both token types.
type Claims struct {
	jwt.RegisteredClaims
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Type          TokenType `json:"type"`
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID_SUBJECT").With("subject", c.Subject).Wrap(err)
	}
	return id, nil
}

// TokenCodec signs and verifies access and refresh tokens.
// Each token type has its own HMAC secret.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	now           func() time.Time
}

// TokenCodecOption configures a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) TokenCodecOption {
	return func(c *TokenCodec) { c.issuer = issuer }
}

// WithTokenClock overrides the time source.
func WithTokenClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec creates a TokenCodec. Both secrets are required and must differ.
func NewTokenCodec(accessSecret, refreshSecret []byte, opts ...TokenCodecOption) (*TokenCodec, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, oops.Code("TOKEN_SECRET_MISSING").Errorf("access and refresh secrets are required")
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, oops.Code("TOKEN_SECRET_REUSED").Errorf("access and refresh secrets must differ")
	}

	c := &TokenCodec{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        DefaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueAccessToken signs a 15 minute access token.
func (c *TokenCodec) IssueAccessToken(accountID ulid.ULID, email string, emailVerified bool) (string, time.Time, error) {
	return c.issue(TokenTypeAccess, AccessTokenTTL, accountID, email, emailVerified)
}

// IssueRefreshToken signs a 7 day refresh token.
func (c *TokenCodec) IssueRefreshToken(accountID ulid.ULID, email string, emailVerified bool) (string, time.Time, error) {
	return c.issue(TokenTypeRefresh, RefreshTokenTTL, accountID, email, emailVerified)
}

func (c *TokenCodec) issue(typ TokenType, ttl time.Duration, accountID ulid.ULID, email string, emailVerified bool) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    c.issuer,
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:         email,
		EmailVerified: emailVerified,
		Type:          typ,
	})

	signed, err := token.SignedString(c.secretFor(typ))
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("type", string(typ)).Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, expiry and type of a token.
// The key is chosen from the token's own type claim, so a token of the other
// type fails with ErrWrongTokenType and a forged type claim fails the signature check.
func (c *TokenCodec) Verify(tokenString string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			tc, ok := t.Claims.(*Claims)
			if !ok {
				return nil, ErrBadSignature
			}
			key := c.secretFor(tc.Type)
			if key == nil {
				return nil, ErrBadSignature
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").With("type", string(expected)).Wrap(ErrTokenExpired)
		}
		return nil, oops.Code("TOKEN_BAD_SIGNATURE").
			With("type", string(expected)).
			With("cause", err.Error()).
			Wrap(ErrBadSignature)
	}

	if claims.Type != expected {
		return nil, oops.Code("TOKEN_WRONG_TYPE").
			With("expected", string(expected)).
			With("actual", string(claims.Type)).
			Wrap(ErrWrongTokenType)
	}
	return claims, nil
}

func (c *TokenCodec) secretFor(typ TokenType) []byte {
	switch typ {
	case TokenTypeAccess:
		return c.accessSecret
	case TokenTypeRefresh:
		return c.refreshSecret
	}
	return nil
}
