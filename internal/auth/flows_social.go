// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/holomush/holoauth/pkg/errutil"
)

// SocialRegisterInput is the payload of an explicit social registration.
// Non-empty names override the provider's.
type SocialRegisterInput struct {
	Provider  string
	Code      string
	FirstName string
	LastName  string
}

func requireAuthCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return newKindError(KindValidation, "AUTH_OAUTH_CODE_MISSING", "authorization code is required")
	}
	return nil
}

// SocialAuthURL returns the consent URL of a provider.
func (s *CredentialService) SocialAuthURL(provider, state string) (string, error) {
	p, err := ValidateProvider(provider)
	if err != nil {
		return "", err
	}
	url, err := s.social.AuthCodeURL(p, state)
	if err != nil {
		return "", classifySocial(err)
	}
	return url, nil
}

// SocialLogin signs in with a provider authorization code, linking or
// creating the local account as needed.
func (s *CredentialService) SocialLogin(ctx context.Context, provider, code string, device Device) (_ *Session, err error) {
	ctx, end := s.begin(ctx, "social_login", attribute.String("provider", provider))
	defer end(&err)

	p, err := ValidateProvider(provider)
	if err != nil {
		return nil, err
	}
	if err := requireAuthCode(code); err != nil {
		return nil, err
	}

	profile, err := s.social.Exchange(ctx, p, code)
	if err != nil {
		return nil, classifySocial(err)
	}
	account, claimed, err := s.social.ResolveAccount(ctx, profile)
	if err != nil {
		return nil, classifySocial(err)
	}
	if err := s.dropClaimedSessions(ctx, account, claimed); err != nil {
		return nil, err
	}
	return s.socialSession(ctx, account, device)
}

// SocialRegister registers with a provider authorization code. An identity
// that is already linked fails with KindConflict.
func (s *CredentialService) SocialRegister(ctx context.Context, in SocialRegisterInput, device Device) (_ *Session, err error) {
	ctx, end := s.begin(ctx, "social_register", attribute.String("provider", in.Provider))
	defer end(&err)

	p, err := ValidateProvider(in.Provider)
	if err != nil {
		return nil, err
	}
	if err := requireAuthCode(in.Code); err != nil {
		return nil, err
	}
	if err := ValidateName("first_name", in.FirstName); err != nil {
		return nil, err
	}
	if err := ValidateName("last_name", in.LastName); err != nil {
		return nil, err
	}

	profile, err := s.social.Exchange(ctx, p, in.Code)
	if err != nil {
		return nil, classifySocial(err)
	}
	if first := strings.TrimSpace(in.FirstName); first != "" {
		profile.GivenName = first
	}
	if last := strings.TrimSpace(in.LastName); last != "" {
		profile.FamilyName = last
	}

	account, claimed, err := s.social.Register(ctx, profile)
	if err != nil {
		return nil, classifySocial(err)
	}
	if err := s.dropClaimedSessions(ctx, account, claimed); err != nil {
		return nil, err
	}
	if account.FirstName == "" && account.LastName == "" {
		account.FirstName = profile.GivenName
		account.LastName = profile.FamilyName
	}
	return s.socialSession(ctx, account, device)
}

// LinkSocialIdentity links a provider identity to an authenticated account.
func (s *CredentialService) LinkSocialIdentity(ctx context.Context, accountID ulid.ULID, provider, code string) (_ *SocialLink, err error) {
	ctx, end := s.begin(ctx, "social_link",
		attribute.String("account_id", accountID.String()),
		attribute.String("provider", provider))
	defer end(&err)

	p, err := ValidateProvider(provider)
	if err != nil {
		return nil, err
	}
	if err := requireAuthCode(code); err != nil {
		return nil, err
	}

	account, err := s.accountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile, err := s.social.Exchange(ctx, p, code)
	if err != nil {
		return nil, classifySocial(err)
	}
	link, err := s.social.Link(ctx, account.ID, profile)
	if err != nil {
		return nil, classifySocial(err)
	}
	return link, nil
}

// dropClaimedSessions revokes sessions opened before a provider identity
// claimed the account.
func (s *CredentialService) dropClaimedSessions(ctx context.Context, account *Account, claimed bool) error {
	if !claimed {
		return nil
	}
	s.logger.InfoContext(ctx, "unverified account claimed by provider identity",
		"account_id", account.ID.String())
	if err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		return internalError("AUTH_SOCIAL_FAILED", "revoke sessions of claimed account", err)
	}
	return nil
}

func (s *CredentialService) socialSession(ctx context.Context, account *Account, device Device) (*Session, error) {
	if !account.Active {
		return nil, newKindError(KindUnauthorized, "AUTH_ACCOUNT_INACTIVE", "account is deactivated")
	}

	account.RecordLogin(s.now())
	if err := s.accounts.Update(ctx, account); err != nil {
		errutil.LogWarn(ctx, s.logger, "social login bookkeeping not saved", err)
	}

	tokens, err := s.issueTokens(ctx, account, device)
	if err != nil {
		return nil, err
	}
	return &Session{Account: account, Tokens: tokens}, nil
}

// classifySocial maps a SocialIdentityResolver failure to a kind.
func classifySocial(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedProvider):
		return Classify(KindValidation, err)
	case errors.Is(err, ErrProviderExchange):
		return Classify(KindProviderExchangeFailed, err)
	case errors.Is(err, ErrLinkAlreadyExists):
		return Classify(KindConflict, err)
	}
	return internalError("AUTH_SOCIAL_FAILED", "resolve social identity", err)
}
