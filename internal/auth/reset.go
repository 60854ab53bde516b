// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32 // 64 hex chars
	ResetTokenExpiry = time.Hour
)

// PasswordReset represents a pending password reset.
type PasswordReset struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewPasswordReset creates a PasswordReset for the account.
func NewPasswordReset(accountID ulid.ULID, tokenHash string, expiresAt time.Time) (*PasswordReset, error) {
	if accountID.IsZero() {
		return nil, oops.Code("RESET_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_TOKEN_HASH").Errorf("token hash cannot be empty")
	}
	return &PasswordReset{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsExpiredAt returns true if the reset has expired at t.
func (r *PasswordReset) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// GenerateResetToken creates a random token and its SHA-256 fingerprint.
// The token goes to the user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Create stores a new reset.
	Create(ctx context.Context, reset *PasswordReset) error

	// Consume atomically deletes the reset with the given token hash and
	// returns it, expired or not. Exactly one caller wins a token; the rest
	// get ErrNotFound.
	Consume(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// DeleteByAccount removes every reset of the account.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) error

	// DeleteExpired removes resets that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
