// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/holomush/holoauth/pkg/errutil"
)

// RegisterInput is the payload of a password registration.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput is the payload of a password login.
type LoginInput struct {
	Email    string
	Password string
	Device   Device
}

func invalidCredentials() error {
	return newKindError(KindUnauthorized, "AUTH_INVALID_CREDENTIALS", "invalid email or password")
}

func emailTaken(email string) error {
	return Classify(KindConflict, oops.Code("AUTH_EMAIL_TAKEN").With("email", email).Wrap(ErrDuplicate))
}

func alreadyVerified(accountID ulid.ULID) error {
	return Classify(KindConflict, oops.Code("AUTH_ALREADY_VERIFIED").
		With("account_id", accountID.String()).
		Wrap(ErrAlreadyVerified))
}

// Register creates an unverified account and mails it a verification code.
// No tokens are issued until the email is verified.
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (_ *PendingVerification, err error) {
	ctx, end := s.begin(ctx, "register")
	defer end(&err)

	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := ValidateName("first_name", in.FirstName); err != nil {
		return nil, err
	}
	if err := ValidateName("last_name", in.LastName); err != nil {
		return nil, err
	}

	_, lookupErr := s.accounts.GetByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		return nil, emailTaken(email)
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, internalError("AUTH_REGISTER_FAILED", "get account by email", lookupErr)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError("AUTH_REGISTER_FAILED", "hash password", err)
	}
	account, err := NewAccount(email, digest, in.FirstName, in.LastName)
	if err != nil {
		return nil, Classify(KindValidation, err)
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, emailTaken(email)
		}
		return nil, internalError("AUTH_REGISTER_FAILED", "create account", err)
	}

	code, err := s.verification.Issue(ctx, account.ID)
	if err != nil {
		return nil, internalError("AUTH_REGISTER_FAILED", "issue verification code", err)
	}

	return &PendingVerification{
		Account: account,
		Warnings: s.sendMail(ctx, TemplateVerification, account, mailData{
			Code:    code,
			Minutes: int(VerificationCodeTTL.Minutes()),
		}),
	}, nil
}

// Login authenticates with email and password.
// Missing, inactive and passwordless accounts fail exactly like a wrong
// password, and a miss still pays for one hash verification.
func (s *CredentialService) Login(ctx context.Context, in LoginInput) (_ *Session, err error) {
	ctx, end := s.begin(ctx, "login")
	defer end(&err)

	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, newKindError(KindValidation, "AUTH_INVALID_PASSWORD", "password is required")
	}

	account, lookupErr := s.accounts.GetByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, internalError("AUTH_LOGIN_FAILED", "get account by email", lookupErr)
	}

	target := dummyPasswordHash
	if lookupErr == nil && account.HasPassword() {
		target = account.PasswordHash
	}
	valid := s.hasher.Verify(in.Password, target)

	if lookupErr != nil || !account.HasPassword() || !valid || !account.Active {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if digest, hashErr := s.hasher.Hash(in.Password); hashErr == nil {
			account.PasswordHash = digest
		}
	}
	account.RecordLogin(s.now())
	if err := s.accounts.Update(ctx, account); err != nil {
		errutil.LogWarn(ctx, s.logger, "login bookkeeping not saved", err)
	}

	tokens, err := s.issueTokens(ctx, account, in.Device)
	if err != nil {
		return nil, err
	}
	return &Session{Account: account, Tokens: tokens}, nil
}

// VerifyEmail checks a verification code for an authenticated account, marks
// the email verified and issues fresh tokens carrying the new state.
func (s *CredentialService) VerifyEmail(ctx context.Context, accountID ulid.ULID, code string, device Device) (_ *Session, err error) {
	ctx, end := s.begin(ctx, "verify_email", attribute.String("account_id", accountID.String()))
	defer end(&err)

	if err := ValidateVerificationCode(code); err != nil {
		return nil, err
	}

	account, err := s.accountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.EmailVerified {
		return nil, alreadyVerified(account.ID)
	}

	if err := s.verification.Check(ctx, account.ID, code); err != nil {
		return nil, classifyVerification(err)
	}

	account.EmailVerified = true
	account.UpdatedAt = s.now().UTC()
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, internalError("AUTH_VERIFY_FAILED", "mark email verified", err)
	}

	warnings := s.sendMail(ctx, TemplateWelcome, account, mailData{})

	tokens, err := s.issueTokens(ctx, account, device)
	if err != nil {
		return nil, err
	}
	return &Session{Account: account, Tokens: tokens, Warnings: warnings}, nil
}

// ResendVerification issues and mails a new code, at most ResendLimit per ResendWindow.
func (s *CredentialService) ResendVerification(ctx context.Context, email string) (_ *PendingVerification, err error) {
	ctx, end := s.begin(ctx, "resend_verification")
	defer end(&err)

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, Classify(KindNotFound, oops.Code("AUTH_ACCOUNT_NOT_FOUND").With("email", email).Wrap(err))
	}
	if err != nil {
		return nil, internalError("AUTH_RESEND_FAILED", "get account by email", err)
	}
	if account.EmailVerified {
		return nil, alreadyVerified(account.ID)
	}

	now := s.now().UTC()
	issued, err := s.verification.IssuedSince(ctx, account.ID, ResendWindowStart(now))
	if err != nil {
		return nil, internalError("AUTH_RESEND_FAILED", "count issued codes", err)
	}
	if decision := CheckResend(issued, now); !decision.Allowed {
		return nil, Classify(KindRateLimited, oops.Code("AUTH_RESEND_RATE_LIMITED").
			With("account_id", account.ID.String()).
			With("issued", decision.Issued).
			With("window_start", decision.WindowStart).
			Wrap(ErrRateLimited))
	}

	code, err := s.verification.Issue(ctx, account.ID)
	if err != nil {
		return nil, internalError("AUTH_RESEND_FAILED", "issue verification code", err)
	}

	return &PendingVerification{
		Account: account,
		Warnings: s.sendMail(ctx, TemplateVerification, account, mailData{
			Code:    code,
			Minutes: int(VerificationCodeTTL.Minutes()),
		}),
	}, nil
}

// classifyVerification maps a VerificationChallenge failure to a kind.
func classifyVerification(err error) error {
	var invalid *InvalidCodeError
	switch {
	case errors.Is(err, ErrNotFound):
		return Classify(KindNotFound, err)
	case errors.Is(err, ErrExpired), errors.Is(err, ErrAttemptsExceeded), errors.As(err, &invalid):
		return Classify(KindValidation, err)
	}
	return internalError("AUTH_VERIFY_FAILED", "check verification code", err)
}
