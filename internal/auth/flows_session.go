// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/pkg/errutil"
)

// Rotation results recorded in metrics.
const (
	rotationRotated  = "rotated"
	rotationNotFound = "not_found"
	rotationExpired  = "expired"
	rotationRevoked  = "revoked"
	rotationBadToken = "bad_token"
	rotationMismatch = "subject_mismatch"
	rotationFailed   = "error"
)

// RefreshTokens exchanges a refresh token for a new pair. The presented
// token is consumed; presenting it again fails with KindUnauthorized.
func (s *CredentialService) RefreshTokens(ctx context.Context, raw string, device Device) (_ *Session, err error) {
	ctx, end := s.begin(ctx, "refresh")
	defer end(&err)

	if raw == "" {
		return nil, newKindError(KindUnauthorized, "AUTH_REFRESH_TOKEN_MISSING", "refresh token is required")
	}

	claims, err := s.tokens.Verify(raw, TokenTypeRefresh)
	if err != nil {
		observability.RecordRotation(rotationBadToken)
		return nil, Classify(KindUnauthorized, err)
	}
	subject, err := claims.AccountID()
	if err != nil {
		observability.RecordRotation(rotationBadToken)
		return nil, Classify(KindUnauthorized, err)
	}

	record, err := s.sessions.Rotate(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			observability.RecordRotation(rotationNotFound)
		case errors.Is(err, ErrExpired):
			observability.RecordRotation(rotationExpired)
		case errors.Is(err, ErrRevoked):
			observability.RecordRotation(rotationRevoked)
		default:
			observability.RecordRotation(rotationFailed)
			return nil, internalError("AUTH_REFRESH_FAILED", "rotate refresh token", err)
		}
		return nil, Classify(KindUnauthorized, err)
	}

	if record.AccountID != subject {
		observability.RecordRotation(rotationMismatch)
		return nil, Classify(KindUnauthorized, oops.Code("AUTH_REFRESH_SUBJECT_MISMATCH").
			With("record_account_id", record.AccountID.String()).
			With("subject", subject.String()).
			Errorf("refresh token subject does not match its session"))
	}
	observability.RecordRotation(rotationRotated)

	account, err := s.activeAccount(ctx, subject)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, account, device)
	if err != nil {
		return nil, err
	}
	return &Session{Account: account, Tokens: tokens}, nil
}

// Logout revokes one refresh token of the account. It never fails; a
// revocation error is logged.
func (s *CredentialService) Logout(ctx context.Context, accountID ulid.ULID, raw string) {
	var err error
	ctx, end := s.begin(ctx, "logout", attribute.String("account_id", accountID.String()))
	defer end(&err)

	if revokeErr := s.sessions.Revoke(ctx, accountID, raw); revokeErr != nil {
		errutil.LogWarn(ctx, s.logger, "logout revocation failed", revokeErr)
	}
}

// LogoutAll revokes every refresh token of the account. It never fails; a
// revocation error is logged.
func (s *CredentialService) LogoutAll(ctx context.Context, accountID ulid.ULID) {
	var err error
	ctx, end := s.begin(ctx, "logout_all", attribute.String("account_id", accountID.String()))
	defer end(&err)

	if revokeErr := s.sessions.RevokeAll(ctx, accountID); revokeErr != nil {
		errutil.LogWarn(ctx, s.logger, "logout-all revocation failed", revokeErr)
	}
}

// Authenticate resolves an access token to its active account.
func (s *CredentialService) Authenticate(ctx context.Context, accessToken string) (_ *Account, err error) {
	ctx, end := s.begin(ctx, "authenticate")
	defer end(&err)

	if accessToken == "" {
		return nil, newKindError(KindUnauthorized, "AUTH_ACCESS_TOKEN_MISSING", "access token is required")
	}
	claims, err := s.tokens.Verify(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, Classify(KindUnauthorized, err)
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, Classify(KindUnauthorized, err)
	}
	return s.activeAccount(ctx, accountID)
}

// DeactivateAccount disables the account and revokes all of its refresh tokens.
func (s *CredentialService) DeactivateAccount(ctx context.Context, accountID ulid.ULID) (err error) {
	ctx, end := s.begin(ctx, "deactivate", attribute.String("account_id", accountID.String()))
	defer end(&err)

	account, err := s.accountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Active {
		account.Active = false
		account.UpdatedAt = s.now().UTC()
		if err := s.accounts.Update(ctx, account); err != nil {
			return internalError("AUTH_DEACTIVATE_FAILED", "update account", err)
		}
	}
	if err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		return internalError("AUTH_DEACTIVATE_FAILED", "revoke sessions", err)
	}
	return nil
}

// activeAccount loads an account for a token subject. Missing and inactive
// accounts are KindUnauthorized.
func (s *CredentialService) activeAccount(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, Classify(KindUnauthorized, oops.Code("AUTH_ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(err))
	}
	if err != nil {
		return nil, internalError("AUTH_ACCOUNT_LOAD_FAILED", "get account by id", err)
	}
	if !account.Active {
		return nil, newKindError(KindUnauthorized, "AUTH_ACCOUNT_INACTIVE", "account is deactivated")
	}
	return account, nil
}
