// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/pkg/errutil"
)

// RequestPasswordReset mails a one-time reset token to the account owning
// email. Unknown and deactivated addresses succeed silently so the response
// never reveals whether an account exists.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, end := s.begin(ctx, "request_password_reset")
	defer end(&err)

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return internalError("RESET_REQUEST_FAILED", "get account by email", err)
	}
	if !account.Active {
		return nil
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return internalError("RESET_REQUEST_FAILED", "generate reset token", err)
	}
	reset, err := NewPasswordReset(account.ID, hash, s.now().UTC().Add(ResetTokenExpiry))
	if err != nil {
		return internalError("RESET_REQUEST_FAILED", "build reset", err)
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return internalError("RESET_REQUEST_FAILED", "create reset", err)
	}

	// Mail warnings are not returned.
	s.sendMail(ctx, TemplatePasswordReset, account, mailData{
		Token:   token,
		Minutes: int(ResetTokenExpiry.Minutes()),
	})
	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// consumed before anything else changes; every refresh token of the account
// is revoked and its other outstanding reset tokens are dropped.
func (s *CredentialService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, end := s.begin(ctx, "reset_password")
	defer end(&err)

	if token == "" {
		return newKindError(KindValidation, "RESET_TOKEN_EMPTY", "reset token is required")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	reset, err := s.resets.Consume(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return Classify(KindUnauthorized, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrNotFound))
	}
	if err != nil {
		return internalError("RESET_PASSWORD_FAILED", "consume reset token", err)
	}
	if reset.IsExpiredAt(s.now()) {
		return Classify(KindUnauthorized, oops.Code("RESET_TOKEN_EXPIRED").
			With("account_id", reset.AccountID.String()).
			Wrap(ErrExpired))
	}

	account, err := s.activeAccount(ctx, reset.AccountID)
	if err != nil {
		return err
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError("RESET_PASSWORD_FAILED", "hash password", err)
	}
	account.PasswordHash = digest
	account.UpdatedAt = s.now().UTC()
	if err := s.accounts.Update(ctx, account); err != nil {
		return internalError("RESET_PASSWORD_FAILED", "update password", err)
	}

	if err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		return internalError("RESET_PASSWORD_FAILED", "revoke sessions", err)
	}
	if err := s.resets.DeleteByAccount(ctx, account.ID); err != nil {
		errutil.LogWarn(ctx, s.logger, "reset tokens not cleared", err)
	}
	return nil
}
