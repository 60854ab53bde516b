// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/holomush/holoauth/internal/auth"
)

func TestClassify(t *testing.T) {
	reason := oops.Code("REFRESH_TOKEN_REVOKED").Wrap(auth.ErrRevoked)
	err := auth.Classify(auth.KindUnauthorized, reason)

	assert.ErrorIs(t, err, auth.KindUnauthorized)
	assert.ErrorIs(t, err, auth.ErrRevoked)
	assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
	assert.Equal(t, reason.Error(), err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, auth.KindUnauthorized, auth.KindOf(wrapped))

	assert.NoError(t, auth.Classify(auth.KindConflict, nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, auth.KindInternal, auth.KindOf(errors.New("boom")))
	assert.Equal(t, auth.Kind(""), auth.KindOf(nil))
}

func TestRemainingAttempts(t *testing.T) {
	err := oops.Code("VERIFICATION_CODE_INVALID").Wrap(&auth.InvalidCodeError{Remaining: 2})
	n, ok := auth.RemainingAttempts(auth.Classify(auth.KindValidation, err))
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = auth.RemainingAttempts(errors.New("other"))
	assert.False(t, ok)
}
