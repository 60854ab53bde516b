// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
)

func TestPasswordResetRepository(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reset := &auth.PasswordReset{
		ID:        ulid.Make(),
		AccountID: ulid.Make(),
		TokenHash: auth.HashToken("reset-token"),
		ExpiresAt: created.Add(auth.ResetTokenExpiry),
		CreatedAt: created,
	}

	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO password_resets`).
		WithArgs(reset.ID.String(), reset.AccountID.String(), reset.TokenHash, reset.ExpiresAt, reset.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`DELETE FROM password_resets\s+WHERE token_hash = \$1\s+RETURNING id, account_id, token_hash, expires_at, created_at`).
		WithArgs(reset.TokenHash).
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "token_hash", "expires_at", "created_at"}).
			AddRow(reset.ID.String(), reset.AccountID.String(), reset.TokenHash, reset.ExpiresAt, reset.CreatedAt))
	mock.ExpectQuery(`DELETE FROM password_resets\s+WHERE token_hash`).
		WithArgs(reset.TokenHash).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`DELETE FROM password_resets WHERE account_id = \$1`).
		WithArgs(reset.AccountID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM password_resets WHERE expires_at < \$1`).
		WithArgs(created).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	repo := postgres.NewPasswordResetRepository(mock)
	require.NoError(t, repo.Create(ctx, reset))

	got, err := repo.Consume(ctx, reset.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, reset, got)

	_, err = repo.Consume(ctx, reset.TokenHash)
	assert.ErrorIs(t, err, auth.ErrNotFound, "a token is consumed once")

	require.NoError(t, repo.DeleteByAccount(ctx, reset.AccountID), "deleting nothing is not an error")

	n, err := repo.DeleteExpired(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
