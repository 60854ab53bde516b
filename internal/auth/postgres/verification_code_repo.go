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

const verificationCodeColumns = `id, account_id, code_hash, created_at, expires_at,
		attempts, max_attempts, used, used_at`

// VerificationCodeRepository implements auth.VerificationCodeRepository using PostgreSQL.
type VerificationCodeRepository struct {
	pool poolIface
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository.
func NewVerificationCodeRepository(pool poolIface) *VerificationCodeRepository {
	return &VerificationCodeRepository{pool: pool}
}

// Create stores a new verification code.
func (r *VerificationCodeRepository) Create(ctx context.Context, code *auth.VerificationCode) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO verification_codes (`+verificationCodeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		code.ID.String(),
		code.AccountID.String(),
		code.CodeHash,
		code.CreatedAt,
		code.ExpiresAt,
		code.Attempts,
		code.MaxAttempts,
		code.Used,
		code.UsedAt,
	)
	if err != nil {
		return oops.Code("VERIFICATION_CODE_CREATE_FAILED").
			With("operation", "insert verification_code").
			With("account_id", code.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// LatestUnused returns the newest unused code of the account.
func (r *VerificationCodeRepository) LatestUnused(ctx context.Context, accountID ulid.ULID) (*auth.VerificationCode, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+verificationCodeColumns+`
		FROM verification_codes
		WHERE account_id = $1 AND used = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, accountID.String())

	code, err := scanVerificationCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_CODE_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_CODE_GET_FAILED").
			With("operation", "get latest unused code").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return code, nil
}

// IncrementAttempts adds one attempt while the code is unused and below its limit.
func (r *VerificationCodeRepository) IncrementAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE verification_codes
		SET attempts = attempts + 1
		WHERE id = $1 AND used = FALSE AND attempts < max_attempts
		RETURNING attempts
	`, id.String()).Scan(&attempts)
	if err == nil {
		return attempts, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("VERIFICATION_CODE_INCREMENT_FAILED").
			With("operation", "increment attempts").
			With("code_id", id.String()).
			Wrap(err)
	}
	return 0, r.classifyMiss(ctx, id)
}

// classifyMiss explains why a guarded update matched no row: a used or
// missing code is ErrNotFound, anything else has run out of attempts.
func (r *VerificationCodeRepository) classifyMiss(ctx context.Context, id ulid.ULID) error {
	var (
		used     bool
		attempts int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT used, attempts FROM verification_codes WHERE id = $1
	`, id.String()).Scan(&used, &attempts)
	switch {
	case errors.Is(err, pgx.ErrNoRows) || (err == nil && used):
		return oops.Code("VERIFICATION_CODE_NOT_FOUND").
			With("code_id", id.String()).
			Wrap(auth.ErrNotFound)
	case err != nil:
		return oops.Code("VERIFICATION_CODE_CLASSIFY_FAILED").
			With("operation", "classify guarded update").
			With("code_id", id.String()).
			Wrap(err)
	}
	return oops.Code("VERIFICATION_CODE_EXHAUSTED").
		With("code_id", id.String()).
		With("attempts", attempts).
		Wrap(auth.ErrAttemptsExceeded)
}

// MarkUsed flips used from false to true while attempts remain.
func (r *VerificationCodeRepository) MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE verification_codes
		SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE AND attempts < max_attempts
	`, id.String(), at)
	if err != nil {
		return oops.Code("VERIFICATION_CODE_MARK_USED_FAILED").
			With("operation", "mark code used").
			With("code_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

// CountSince counts codes created for the account at or after since.
func (r *VerificationCodeRepository) CountSince(ctx context.Context, accountID ulid.ULID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM verification_codes
		WHERE account_id = $1 AND created_at >= $2
	`, accountID.String(), since).Scan(&n)
	if err != nil {
		return 0, oops.Code("VERIFICATION_CODE_COUNT_FAILED").
			With("operation", "count codes since").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return n, nil
}

// scanVerificationCode scans a single row into a VerificationCode.
// Callers are responsible for handling pgx.ErrNoRows.
func scanVerificationCode(row pgx.Row) (*auth.VerificationCode, error) {
	var (
		idStr, accountIDStr string
		code                auth.VerificationCode
	)
	err := row.Scan(
		&idStr,
		&accountIDStr,
		&code.CodeHash,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.Attempts,
		&code.MaxAttempts,
		&code.Used,
		&code.UsedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	if code.ID, err = parseID("id", idStr); err != nil {
		return nil, err
	}
	if code.AccountID, err = parseID("account_id", accountIDStr); err != nil {
		return nil, err
	}
	return &code, nil
}

// Compile-time interface check.
var _ auth.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
