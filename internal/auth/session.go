// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// expiredRetention is how long expired refresh records are kept before purge.
const expiredRetention = 24 * time.Hour

// Device describes the client a refresh token was issued to.
type Device struct {
	UserAgent string
	IPAddress string
}

// RefreshToken is the persisted record of one issued refresh token.
type RefreshToken struct {
	ID         ulid.ULID
	AccountID  ulid.ULID
	TokenHash  string
	DeviceInfo string
	IPAddress  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
}

// IsExpiredAt returns true if the record is past its expiry at t.
func (t *RefreshToken) IsExpiredAt(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// HashToken computes the SHA-256 fingerprint of a raw token.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new record.
	Create(ctx context.Context, token *RefreshToken) error

	// GetByTokenHash retrieves a record by fingerprint regardless of state.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Consume atomically revokes the record with tokenHash if it is neither
	// revoked nor expired at now, and returns it. Returns ErrNotFound when no
	// live record matched.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// Revoke marks the account's record with tokenHash revoked. Missing or
	// already revoked records are not an error.
	Revoke(ctx context.Context, accountID ulid.ULID, tokenHash string, now time.Time) error

	// RevokeAllForAccount revokes every live record of the account.
	RevokeAllForAccount(ctx context.Context, accountID ulid.ULID, now time.Time) (int64, error)

	// DeleteExpired removes records that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionStore persists refresh token fingerprints and enforces one-shot rotation.
type SessionStore struct {
	repo RefreshTokenRepository
	ttl  time.Duration
	now  func() time.Time
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore creates a SessionStore over repo.
func NewSessionStore(repo RefreshTokenRepository, opts ...SessionStoreOption) (*SessionStore, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_STORE_INVALID").Errorf("refresh token repository is required")
	}
	s := &SessionStore{repo: repo, ttl: RefreshTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecordIssuance stores the fingerprint of a freshly issued refresh token.
func (s *SessionStore) RecordIssuance(ctx context.Context, accountID ulid.ULID, raw string, device Device) (*RefreshToken, error) {
	if raw == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("refresh token cannot be empty")
	}

	now := s.now().UTC()
	record := &RefreshToken{
		ID:         ulid.Make(),
		AccountID:  accountID,
		TokenHash:  HashToken(raw),
		DeviceInfo: device.UserAgent,
		IPAddress:  device.IPAddress,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, oops.Code("SESSION_RECORD_FAILED").
			With("operation", "persist refresh token").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return record, nil
}

// Rotate consumes the record for raw. Exactly one caller can consume a given
// record; every later or concurrent caller gets ErrRevoked.
func (s *SessionStore) Rotate(ctx context.Context, raw string) (*RefreshToken, error) {
	hash := HashToken(raw)
	now := s.now().UTC()

	record, err := s.repo.Consume(ctx, hash, now)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("SESSION_ROTATE_FAILED").With("operation", "consume refresh token").Wrap(err)
	}

	existing, err := s.repo.GetByTokenHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_ROTATE_FAILED").With("operation", "classify refresh token").Wrap(err)
	}

	if existing.IsExpiredAt(now) {
		return nil, oops.Code("REFRESH_TOKEN_EXPIRED").
			With("account_id", existing.AccountID.String()).
			With("expired_at", existing.ExpiresAt).
			Wrap(ErrExpired)
	}
	return nil, oops.Code("REFRESH_TOKEN_REVOKED").
		With("account_id", existing.AccountID.String()).
		Wrap(ErrRevoked)
}

// Revoke revokes one refresh token of the account. Idempotent.
func (s *SessionStore) Revoke(ctx context.Context, accountID ulid.ULID, raw string) error {
	if raw == "" {
		return nil
	}
	if err := s.repo.Revoke(ctx, accountID, HashToken(raw), s.now().UTC()); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// RevokeAll revokes every refresh token of the account. Idempotent.
func (s *SessionStore) RevokeAll(ctx context.Context, accountID ulid.ULID) error {
	if _, err := s.repo.RevokeAllForAccount(ctx, accountID, s.now().UTC()); err != nil {
		return oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// PurgeExpired deletes records that expired more than a day ago.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC().Add(-expiredRetention))
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}
