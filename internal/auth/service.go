// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/pkg/errutil"
)

var tracer = otel.Tracer("github.com/holomush/holoauth/internal/auth")

// dummyPasswordHash is verified when the account does not exist so that a
// login miss costs the same as a wrong password. It matches no password.
//
//nolint:gosec // G101: not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// TokenPair is the credential pair handed to a client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Warning reports a best-effort step that failed without failing the flow.
type Warning struct {
	Code    string
	Message string
}

// Warning codes.
const (
	WarningMailNotSent = "mail_not_sent"
)

// Session is the result of a flow that authenticates the caller.
type Session struct {
	Account  *Account
	Tokens   TokenPair
	Warnings []Warning
}

// PendingVerification is the result of a registration awaiting email verification.
type PendingVerification struct {
	Account  *Account
	Warnings []Warning
}

// Dependencies are the collaborators of a CredentialService.
type Dependencies struct {
	Accounts     AccountRepository
	Resets       PasswordResetRepository
	Sessions     *SessionStore
	Verification *VerificationChallenge
	Social       *SocialIdentityResolver
	Tokens       *TokenCodec
	Hasher       PasswordHasher
	Mailer       Mailer
	Logger       *slog.Logger
	Now          func() time.Time
}

// CredentialService orchestrates every credential flow.
type CredentialService struct {
	accounts     AccountRepository
	resets       PasswordResetRepository
	sessions     *SessionStore
	verification *VerificationChallenge
	social       *SocialIdentityResolver
	tokens       *TokenCodec
	hasher       PasswordHasher
	mailer       Mailer
	logger       *slog.Logger
	now          func() time.Time
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(deps Dependencies) (*CredentialService, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("account repository is required")
	case deps.Resets == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("password reset repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("session store is required")
	case deps.Verification == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("verification challenge is required")
	case deps.Social == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("social identity resolver is required")
	case deps.Tokens == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("token codec is required")
	case deps.Hasher == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("password hasher is required")
	case deps.Mailer == nil:
		return nil, oops.Code("SERVICE_INVALID").Errorf("mailer is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &CredentialService{
		accounts:     deps.Accounts,
		resets:       deps.Resets,
		sessions:     deps.Sessions,
		verification: deps.Verification,
		social:       deps.Social,
		tokens:       deps.Tokens,
		hasher:       deps.Hasher,
		mailer:       deps.Mailer,
		logger:       logger,
		now:          now,
	}, nil
}

// begin opens a span for flow. The returned func records the flow outcome
// from *errp and ends the span.
func (s *CredentialService) begin(ctx context.Context, flow string, attrs ...attribute.KeyValue) (context.Context, func(errp *error)) {
	ctx, span := tracer.Start(ctx, "CredentialService."+flow, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		outcome := "ok"
		if err := *errp; err != nil {
			kind := KindOf(err)
			outcome = string(kind)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			if kind == KindInternal {
				errutil.LogError(ctx, s.logger, flow+" failed", err)
			}
		}
		observability.RecordFlow(flow, outcome)
		span.End()
	}
}

// issueTokens signs a token pair and records the refresh token issuance.
func (s *CredentialService) issueTokens(ctx context.Context, account *Account, device Device) (TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(account.ID, account.Email, account.EmailVerified)
	if err != nil {
		return TokenPair{}, internalError("AUTH_TOKEN_ISSUE_FAILED", "issue access token", err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(account.ID, account.Email, account.EmailVerified)
	if err != nil {
		return TokenPair{}, internalError("AUTH_TOKEN_ISSUE_FAILED", "issue refresh token", err)
	}
	if _, err := s.sessions.RecordIssuance(ctx, account.ID, refresh, device); err != nil {
		return TokenPair{}, internalError("AUTH_TOKEN_ISSUE_FAILED", "record refresh token", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// sendMail renders and dispatches a template. The dispatch outlives request
// cancellation and is bounded by MailTimeout. A failure is logged, counted
// and returned as a warning.
func (s *CredentialService) sendMail(ctx context.Context, name string, account *Account, data mailData) []Warning {
	msg, err := renderMessage(name, account, data)
	if err == nil {
		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), MailTimeout)
		err = s.mailer.Send(mailCtx, msg)
		cancel()
	}
	if err == nil {
		return nil
	}

	errutil.LogWarn(ctx, s.logger, "mail not sent", oops.Code("AUTH_MAIL_FAILED").
		With("template", name).
		With("account_id", account.ID.String()).
		Wrap(err))
	observability.RecordMailFailure(name)
	return []Warning{{
		Code:    WarningMailNotSent,
		Message: "the " + strings.ReplaceAll(name, "_", " ") + " email could not be sent",
	}}
}

// accountByID fetches an account, classifying a miss as KindNotFound.
func (s *CredentialService) accountByID(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, Classify(KindNotFound, oops.Code("AUTH_ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(ErrNotFound))
	}
	if err != nil {
		return nil, internalError("AUTH_ACCOUNT_LOAD_FAILED", "get account by id", err)
	}
	return account, nil
}

// PurgeExpired deletes expired refresh token records and password resets.
func (s *CredentialService) PurgeExpired(ctx context.Context) (sessions, resets int64, err error) {
	sessions, err = s.sessions.PurgeExpired(ctx)
	if err != nil {
		return 0, 0, internalError("AUTH_PURGE_FAILED", "purge refresh tokens", err)
	}
	resets, err = s.resets.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return sessions, 0, internalError("AUTH_PURGE_FAILED", "purge password resets", err)
	}
	return sessions, resets, nil
}
