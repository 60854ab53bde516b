// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Verification code policy.
const (
	VerificationCodeTTL     = 15 * time.Minute
	MaxVerificationAttempts = 5

	codeFloor = 100000
	codeSpan  = 900000
)

// VerificationCode is a one-time email verification challenge.
type VerificationCode struct {
	ID          ulid.ULID
	AccountID   ulid.ULID
	CodeHash    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	Used        bool
	UsedAt      *time.Time
}

// VerificationCodeRepository manages verification code persistence.
type VerificationCodeRepository interface {
	// Create stores a new code.
	Create(ctx context.Context, code *VerificationCode) error

	// LatestUnused returns the most recently created unused code of the account.
	LatestUnused(ctx context.Context, accountID ulid.ULID) (*VerificationCode, error)

	// IncrementAttempts atomically adds one attempt while attempts < max_attempts
	// and the code is unused, returning the new count. Returns ErrAttemptsExceeded
	// when the limit was already reached and ErrNotFound when the code is used.
	IncrementAttempts(ctx context.Context, id ulid.ULID) (int, error)

	// MarkUsed atomically flips used from false to true while attempts <
	// max_attempts. Returns ErrNotFound when the code was already used and
	// ErrAttemptsExceeded when the limit was reached in the meantime.
	MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) error

	// CountSince counts codes created for the account at or after since.
	CountSince(ctx context.Context, accountID ulid.ULID, since time.Time) (int, error)
}

// CodeGenerator produces a raw 6-digit code.
type CodeGenerator func() (string, error)

// RandomCode draws a code uniformly from 100000-999999 using crypto/rand.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", oops.Code("VERIFICATION_CODE_GENERATE_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeFloor), nil
}

// VerificationChallenge issues and checks email verification codes.
type VerificationChallenge struct {
	repo     VerificationCodeRepository
	secret   []byte
	generate CodeGenerator
	now      func() time.Time
}

// VerificationOption configures a VerificationChallenge.
type VerificationOption func(*VerificationChallenge)

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen CodeGenerator) VerificationOption {
	return func(v *VerificationChallenge) { v.generate = gen }
}

// WithVerificationClock overrides the time source.
func WithVerificationClock(now func() time.Time) VerificationOption {
	return func(v *VerificationChallenge) { v.now = now }
}

// NewVerificationChallenge creates a VerificationChallenge.
// secret keys the stored code hashes.
func NewVerificationChallenge(repo VerificationCodeRepository, secret []byte, opts ...VerificationOption) (*VerificationChallenge, error) {
	if repo == nil {
		return nil, oops.Code("VERIFICATION_INVALID").Errorf("verification code repository is required")
	}
	if len(secret) == 0 {
		return nil, oops.Code("VERIFICATION_INVALID").Errorf("code secret is required")
	}

	v := &VerificationChallenge{
		repo:     repo,
		secret:   secret,
		generate: RandomCode,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issue creates and stores a new code for the account and returns it in clear.
func (v *VerificationChallenge) Issue(ctx context.Context, accountID ulid.ULID) (string, error) {
	raw, err := v.generate()
	if err != nil {
		return "", oops.Code("VERIFICATION_ISSUE_FAILED").With("operation", "generate code").Wrap(err)
	}

	now := v.now().UTC()
	code := &VerificationCode{
		ID:          ulid.Make(),
		AccountID:   accountID,
		CodeHash:    v.hash(raw),
		CreatedAt:   now,
		ExpiresAt:   now.Add(VerificationCodeTTL),
		MaxAttempts: MaxVerificationAttempts,
	}
	if err := v.repo.Create(ctx, code); err != nil {
		return "", oops.Code("VERIFICATION_ISSUE_FAILED").
			With("operation", "persist code").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return raw, nil
}

// IssuedSince counts codes issued to the account since the given time.
func (v *VerificationChallenge) IssuedSince(ctx context.Context, accountID ulid.ULID, since time.Time) (int, error) {
	n, err := v.repo.CountSince(ctx, accountID, since)
	if err != nil {
		return 0, oops.Code("VERIFICATION_COUNT_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return n, nil
}

// Check validates a submitted code against the account's latest unused code.
func (v *VerificationChallenge) Check(ctx context.Context, accountID ulid.ULID, submitted string) error {
	code, err := v.repo.LatestUnused(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return oops.Code("VERIFICATION_CODE_NOT_FOUND").With("account_id", accountID.String()).Wrap(ErrNotFound)
	}
	if err != nil {
		return oops.Code("VERIFICATION_CHECK_FAILED").With("operation", "load latest code").Wrap(err)
	}

	if !v.now().Before(code.ExpiresAt) {
		return oops.Code("VERIFICATION_CODE_EXPIRED").With("code_id", code.ID.String()).Wrap(ErrExpired)
	}
	if code.Attempts >= code.MaxAttempts {
		return oops.Code("VERIFICATION_ATTEMPTS_EXCEEDED").With("code_id", code.ID.String()).Wrap(ErrAttemptsExceeded)
	}

	if !hmac.Equal([]byte(v.hash(submitted)), []byte(code.CodeHash)) {
		attempts, err := v.repo.IncrementAttempts(ctx, code.ID)
		switch {
		case errors.Is(err, ErrAttemptsExceeded):
			return oops.Code("VERIFICATION_ATTEMPTS_EXCEEDED").With("code_id", code.ID.String()).Wrap(ErrAttemptsExceeded)
		case errors.Is(err, ErrNotFound):
			return oops.Code("VERIFICATION_CODE_NOT_FOUND").With("code_id", code.ID.String()).Wrap(ErrNotFound)
		case err != nil:
			return oops.Code("VERIFICATION_CHECK_FAILED").With("operation", "increment attempts").Wrap(err)
		}
		remaining := max(code.MaxAttempts-attempts, 0)
		return oops.Code("VERIFICATION_CODE_INVALID").
			With("code_id", code.ID.String()).
			With("remaining_attempts", remaining).
			Wrap(&InvalidCodeError{Remaining: remaining})
	}

	if err := v.repo.MarkUsed(ctx, code.ID, v.now().UTC()); err != nil {
		switch {
		case errors.Is(err, ErrAttemptsExceeded):
			return oops.Code("VERIFICATION_ATTEMPTS_EXCEEDED").With("code_id", code.ID.String()).Wrap(ErrAttemptsExceeded)
		case errors.Is(err, ErrNotFound):
			return oops.Code("VERIFICATION_CODE_NOT_FOUND").With("code_id", code.ID.String()).Wrap(ErrNotFound)
		}
		return oops.Code("VERIFICATION_CHECK_FAILED").With("operation", "mark code used").Wrap(err)
	}
	return nil
}

func (v *VerificationChallenge) hash(code string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
