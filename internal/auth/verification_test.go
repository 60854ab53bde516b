// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memstore"
	"github.com/holomush/holoauth/pkg/errutil"
)

var testCodeSecret = []byte("code-secret-for-tests")

func fixedCode(code string) auth.CodeGenerator {
	return func() (string, error) { return code, nil }
}

func newChallenge(t *testing.T, clock *fakeClock, gen auth.CodeGenerator) (*auth.VerificationChallenge, *memstore.VerificationCodeRepository) {
	t.Helper()
	repo := memstore.NewVerificationCodeRepository()
	opts := []auth.VerificationOption{auth.WithVerificationClock(clock.Now)}
	if gen != nil {
		opts = append(opts, auth.WithCodeGenerator(gen))
	}
	v, err := auth.NewVerificationChallenge(repo, testCodeSecret, opts...)
	require.NoError(t, err)
	return v, repo
}

func TestRandomCode_Range(t *testing.T) {
	for range 200 {
		code, err := auth.RandomCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestVerificationChallenge_Issue(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	v, repo := newChallenge(t, clock, fixedCode("123456"))
	accountID := ulid.Make()

	code, err := v.Issue(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	stored, err := repo.LatestUnused(ctx, accountID)
	require.NoError(t, err)
	assert.NotEqual(t, "123456", stored.CodeHash, "code is stored hashed")
	assert.Equal(t, clock.Now().Add(auth.VerificationCodeTTL), stored.ExpiresAt)
	assert.Equal(t, auth.MaxVerificationAttempts, stored.MaxAttempts)
	assert.Zero(t, stored.Attempts)
	assert.False(t, stored.Used)

	n, err := v.IssuedSince(ctx, accountID, clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVerificationChallenge_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("correct code accepted once", func(t *testing.T) {
		v, _ := newChallenge(t, newFakeClock(), fixedCode("123456"))
		accountID := ulid.Make()
		_, err := v.Issue(ctx, accountID)
		require.NoError(t, err)

		require.NoError(t, v.Check(ctx, accountID, "123456"))

		err = v.Check(ctx, accountID, "123456")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("no code issued", func(t *testing.T) {
		v, _ := newChallenge(t, newFakeClock(), nil)
		err := v.Check(ctx, ulid.Make(), "123456")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "VERIFICATION_CODE_NOT_FOUND")
	})

	t.Run("wrong code reports remaining attempts", func(t *testing.T) {
		v, _ := newChallenge(t, newFakeClock(), fixedCode("123456"))
		accountID := ulid.Make()
		_, err := v.Issue(ctx, accountID)
		require.NoError(t, err)

		err = v.Check(ctx, accountID, "654321")
		remaining, ok := auth.RemainingAttempts(err)
		require.True(t, ok, "expected InvalidCodeError, got %v", err)
		assert.Equal(t, 4, remaining)
		errutil.AssertErrorContext(t, err, "remaining_attempts", 4)
	})

	t.Run("five wrong then correct is exhausted", func(t *testing.T) {
		v, _ := newChallenge(t, newFakeClock(), fixedCode("123456"))
		accountID := ulid.Make()
		_, err := v.Issue(ctx, accountID)
		require.NoError(t, err)

		for i := 1; i <= auth.MaxVerificationAttempts; i++ {
			err := v.Check(ctx, accountID, "000000")
			remaining, ok := auth.RemainingAttempts(err)
			require.True(t, ok)
			assert.Equal(t, auth.MaxVerificationAttempts-i, remaining)
		}

		err = v.Check(ctx, accountID, "123456")
		assert.ErrorIs(t, err, auth.ErrAttemptsExceeded)
	})

	t.Run("expired code", func(t *testing.T) {
		clock := newFakeClock()
		v, _ := newChallenge(t, clock, fixedCode("123456"))
		accountID := ulid.Make()
		_, err := v.Issue(ctx, accountID)
		require.NoError(t, err)

		clock.Advance(auth.VerificationCodeTTL)
		err = v.Check(ctx, accountID, "123456")
		assert.ErrorIs(t, err, auth.ErrExpired)
	})

	t.Run("newest code supersedes", func(t *testing.T) {
		clock := newFakeClock()
		codes := []string{"111111", "222222"}
		i := 0
		v, _ := newChallenge(t, clock, func() (string, error) {
			c := codes[i]
			i++
			return c, nil
		})
		accountID := ulid.Make()
		_, err := v.Issue(ctx, accountID)
		require.NoError(t, err)
		clock.Advance(time.Second)
		_, err = v.Issue(ctx, accountID)
		require.NoError(t, err)

		_, ok := auth.RemainingAttempts(v.Check(ctx, accountID, "111111"))
		assert.True(t, ok, "older code is not the active challenge")
		assert.NoError(t, v.Check(ctx, accountID, "222222"))
	})
}

func TestVerificationChallenge_ConcurrentCorrectSubmissions(t *testing.T) {
	ctx := context.Background()
	v, _ := newChallenge(t, newFakeClock(), fixedCode("123456"))
	accountID := ulid.Make()
	_, err := v.Issue(ctx, accountID)
	require.NoError(t, err)

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := v.Check(ctx, accountID, "123456")
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, auth.ErrNotFound), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}

// interleavingRepo runs onLoad once, after the first snapshot is taken and
// before the caller acts on it.
type interleavingRepo struct {
	*memstore.VerificationCodeRepository
	onLoad func()
}

func (r *interleavingRepo) LatestUnused(ctx context.Context, accountID ulid.ULID) (*auth.VerificationCode, error) {
	code, err := r.VerificationCodeRepository.LatestUnused(ctx, accountID)
	if hook := r.onLoad; hook != nil {
		r.onLoad = nil
		hook()
	}
	return code, err
}

func TestVerificationChallenge_CorrectCodeAfterConcurrentExhaustion(t *testing.T) {
	ctx := context.Background()
	repo := &interleavingRepo{VerificationCodeRepository: memstore.NewVerificationCodeRepository()}
	v, err := auth.NewVerificationChallenge(repo, testCodeSecret, auth.WithCodeGenerator(fixedCode("123456")))
	require.NoError(t, err)
	accountID := ulid.Make()
	_, err = v.Issue(ctx, accountID)
	require.NoError(t, err)

	repo.onLoad = func() {
		for range auth.MaxVerificationAttempts {
			_, ok := auth.RemainingAttempts(v.Check(ctx, accountID, "000000"))
			require.True(t, ok)
		}
	}

	err = v.Check(ctx, accountID, "123456")
	assert.ErrorIs(t, err, auth.ErrAttemptsExceeded)
	errutil.AssertErrorCode(t, err, "VERIFICATION_ATTEMPTS_EXCEEDED")

	code, err := repo.LatestUnused(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, code.Used)
}

func TestNewVerificationChallenge_Validation(t *testing.T) {
	_, err := auth.NewVerificationChallenge(nil, testCodeSecret)
	errutil.AssertErrorCode(t, err, "VERIFICATION_INVALID")

	_, err = auth.NewVerificationChallenge(memstore.NewVerificationCodeRepository(), nil)
	errutil.AssertErrorCode(t, err, "VERIFICATION_INVALID")
}
