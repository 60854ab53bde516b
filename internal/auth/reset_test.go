// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

func TestGenerateResetToken(t *testing.T) {
	token1, hash1, err := auth.GenerateResetToken()
	require.NoError(t, err)
	assert.Len(t, token1, 64)
	assert.Equal(t, auth.HashToken(token1), hash1)

	token2, hash2, err := auth.GenerateResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)
	assert.NotEqual(t, hash1, hash2)
}

func TestNewPasswordReset(t *testing.T) {
	expires := time.Now().Add(auth.ResetTokenExpiry)

	reset, err := auth.NewPasswordReset(ulid.Make(), "hash", expires)
	require.NoError(t, err)
	assert.False(t, reset.IsExpiredAt(time.Now()))
	assert.True(t, reset.IsExpiredAt(expires))

	_, err = auth.NewPasswordReset(ulid.ULID{}, "hash", expires)
	errutil.AssertErrorCode(t, err, "RESET_INVALID_ACCOUNT")

	_, err = auth.NewPasswordReset(ulid.Make(), "", expires)
	errutil.AssertErrorCode(t, err, "RESET_INVALID_TOKEN_HASH")
}
