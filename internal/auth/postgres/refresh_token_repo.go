// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

const refreshTokenColumns = `id, account_id, token_hash, device_info, ip_address,
		issued_at, expires_at, revoked, revoked_at`

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	pool poolIface
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(pool poolIface) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

// Create stores a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		token.ID.String(),
		token.AccountID.String(),
		token.TokenHash,
		token.DeviceInfo,
		token.IPAddress,
		token.IssuedAt,
		token.ExpiresAt,
		token.Revoked,
		token.RevokedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("REFRESH_TOKEN_DUPLICATE").
			With("account_id", token.AccountID.String()).
			Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").
			With("operation", "insert refresh_token").
			With("account_id", token.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a record by fingerprint regardless of state.
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+refreshTokenColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_GET_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// Consume revokes a live record in a single compare-and-set statement, so
// exactly one of any number of concurrent callers gets the row back.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING `+refreshTokenColumns,
		tokenHash, now)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_LIVE").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_CONSUME_FAILED").
			With("operation", "consume refresh token").
			Wrap(err)
	}
	return token, nil
}

// Revoke marks one record of the account revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, accountID ulid.ULID, tokenHash string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $3
		WHERE account_id = $1 AND token_hash = $2 AND revoked = FALSE
	`, accountID.String(), tokenHash, now)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	// Nothing to revoke is a valid state.
	return nil
}

// RevokeAllForAccount revokes every live record of the account.
func (r *RefreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID ulid.ULID, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE account_id = $1 AND revoked = FALSE
	`, accountID.String(), now)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").
			With("operation", "revoke refresh tokens by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes records that expired before the cutoff.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanRefreshToken scans a single row into a RefreshToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		idStr, accountIDStr string
		token               auth.RefreshToken
	)
	err := row.Scan(
		&idStr,
		&accountIDStr,
		&token.TokenHash,
		&token.DeviceInfo,
		&token.IPAddress,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Revoked,
		&token.RevokedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	if token.ID, err = parseID("id", idStr); err != nil {
		return nil, err
	}
	if token.AccountID, err = parseID("account_id", accountIDStr); err != nil {
		return nil, err
	}
	return &token, nil
}

// Compile-time interface check.
var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
