// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ExchangeTimeout bounds a provider code exchange including the profile fetch.
const ExchangeTimeout = 10 * time.Second

// Provider names an external identity provider.
type Provider string

// Supported providers.
const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// ExternalProfile is a provider identity normalized to one shape.
type ExternalProfile struct {
	Provider   Provider
	ProviderID string
	Email      string
	GivenName  string
	FamilyName string
	AvatarURL  string
	Raw        json.RawMessage // provider payload as received
}

// SocialLink binds an external identity to an Account.
type SocialLink struct {
	ID            ulid.ULID
	AccountID     ulid.ULID
	Provider      Provider
	ProviderID    string
	ProviderEmail string
	ProviderData  json.RawMessage
	CreatedAt     time.Time
}

// SocialLinkRepository manages social link persistence.
type SocialLinkRepository interface {
	// Create stores a link. Returns ErrDuplicate if (provider, provider_id) is taken.
	Create(ctx context.Context, link *SocialLink) error

	// GetByProviderID retrieves the link for an external identity.
	GetByProviderID(ctx context.Context, provider Provider, providerID string) (*SocialLink, error)

	// ListByAccount returns all links of an account.
	ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*SocialLink, error)
}

// ProfileExchanger exchanges an authorization code for a normalized profile.
type ProfileExchanger interface {
	Exchange(ctx context.Context, code string) (*ExternalProfile, error)
	AuthCodeURL(state string) string
}

// SocialIdentityResolver turns provider authorization codes into local accounts.
type SocialIdentityResolver struct {
	exchangers map[Provider]ProfileExchanger
	accounts   AccountRepository
	links      SocialLinkRepository
	timeout    time.Duration
}

// NewSocialIdentityResolver creates a SocialIdentityResolver.
// Providers absent from exchangers are reported as unsupported.
func NewSocialIdentityResolver(exchangers map[Provider]ProfileExchanger, accounts AccountRepository, links SocialLinkRepository) (*SocialIdentityResolver, error) {
	if accounts == nil || links == nil {
		return nil, oops.Code("SOCIAL_RESOLVER_INVALID").Errorf("account and social link repositories are required")
	}
	if exchangers == nil {
		exchangers = map[Provider]ProfileExchanger{}
	}
	return &SocialIdentityResolver{
		exchangers: exchangers,
		accounts:   accounts,
		links:      links,
		timeout:    ExchangeTimeout,
	}, nil
}

func (r *SocialIdentityResolver) exchanger(provider Provider) (ProfileExchanger, error) {
	ex, ok := r.exchangers[provider]
	if !ok {
		return nil, oops.Code("SOCIAL_UNSUPPORTED_PROVIDER").
			With("provider", string(provider)).
			Wrap(ErrUnsupportedProvider)
	}
	return ex, nil
}

// AuthCodeURL returns the provider consent URL carrying state.
func (r *SocialIdentityResolver) AuthCodeURL(provider Provider, state string) (string, error) {
	ex, err := r.exchanger(provider)
	if err != nil {
		return "", err
	}
	return ex.AuthCodeURL(state), nil
}

// Exchange performs the provider code exchange and profile fetch within the exchange timeout.
func (r *SocialIdentityResolver) Exchange(ctx context.Context, provider Provider, code string) (*ExternalProfile, error) {
	ex, err := r.exchanger(provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	profile, err := ex.Exchange(ctx, code)
	if err != nil {
		return nil, oops.Code("SOCIAL_EXCHANGE_FAILED").
			With("provider", string(provider)).
			With("cause", err.Error()).
			Wrap(ErrProviderExchange)
	}
	if profile.ProviderID == "" || profile.Email == "" {
		return nil, oops.Code("SOCIAL_PROFILE_INCOMPLETE").
			With("provider", string(provider)).
			Wrap(ErrProviderExchange)
	}
	profile.Provider = provider
	profile.Email = NormalizeEmail(profile.Email)
	return profile, nil
}

// ResolveAccount returns the account for profile, linking or creating one as needed.
// Used by the login flow; an existing link is never an error. claimed reports
// that an unverified account was taken over by the provider identity; see attach.
func (r *SocialIdentityResolver) ResolveAccount(ctx context.Context, profile *ExternalProfile) (account *Account, claimed bool, err error) {
	link, err := r.links.GetByProviderID(ctx, profile.Provider, profile.ProviderID)
	switch {
	case err == nil:
		account, err = r.linkedAccount(ctx, link)
		return account, false, err
	case !errors.Is(err, ErrNotFound):
		return nil, false, oops.Code("SOCIAL_RESOLVE_FAILED").With("operation", "get social link").Wrap(err)
	}
	return r.attach(ctx, profile)
}

// Register is the explicit registration variant of ResolveAccount: an
// identity that is already linked fails with ErrLinkAlreadyExists.
func (r *SocialIdentityResolver) Register(ctx context.Context, profile *ExternalProfile) (account *Account, claimed bool, err error) {
	_, err = r.links.GetByProviderID(ctx, profile.Provider, profile.ProviderID)
	switch {
	case err == nil:
		return nil, false, oops.Code("SOCIAL_LINK_EXISTS").
			With("provider", string(profile.Provider)).
			Wrap(ErrLinkAlreadyExists)
	case !errors.Is(err, ErrNotFound):
		return nil, false, oops.Code("SOCIAL_REGISTER_FAILED").With("operation", "get social link").Wrap(err)
	}
	return r.attach(ctx, profile)
}

// Link binds profile to an existing account. Linking an identity that already
// belongs to the same account returns the existing link.
func (r *SocialIdentityResolver) Link(ctx context.Context, accountID ulid.ULID, profile *ExternalProfile) (*SocialLink, error) {
	existing, err := r.links.GetByProviderID(ctx, profile.Provider, profile.ProviderID)
	switch {
	case err == nil:
		if existing.AccountID == accountID {
			return existing, nil
		}
		return nil, oops.Code("SOCIAL_LINK_EXISTS").
			With("provider", string(profile.Provider)).
			With("account_id", accountID.String()).
			Wrap(ErrLinkAlreadyExists)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("SOCIAL_LINK_FAILED").With("operation", "get social link").Wrap(err)
	}

	link, err := r.createLink(ctx, accountID, profile)
	if errors.Is(err, ErrDuplicate) {
		// Lost a race with another link of the same identity.
		return r.Link(ctx, accountID, profile)
	}
	return link, err
}

// attach links profile to the account owning its email, creating a
// pre-verified account when none exists. An existing account whose email was
// never verified is claimed: it becomes verified and loses any password set
// before that.
func (r *SocialIdentityResolver) attach(ctx context.Context, profile *ExternalProfile) (*Account, bool, error) {
	account, err := r.accounts.GetByEmail(ctx, profile.Email)
	if errors.Is(err, ErrNotFound) {
		account, err = r.createAccount(ctx, profile)
	}
	if err != nil {
		return nil, false, oops.Code("SOCIAL_RESOLVE_FAILED").With("operation", "find or create account").Wrap(err)
	}

	if _, err := r.createLink(ctx, account.ID, profile); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, false, err
		}
		link, getErr := r.links.GetByProviderID(ctx, profile.Provider, profile.ProviderID)
		if getErr != nil {
			return nil, false, oops.Code("SOCIAL_RESOLVE_FAILED").With("operation", "reload social link").Wrap(getErr)
		}
		account, err = r.linkedAccount(ctx, link)
		return account, false, err
	}

	if account.EmailVerified {
		return account, false, nil
	}
	account.EmailVerified = true
	account.PasswordHash = ""
	account.UpdatedAt = time.Now().UTC()
	if err := r.accounts.Update(ctx, account); err != nil {
		return nil, false, oops.Code("SOCIAL_CLAIM_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return account, true, nil
}

func (r *SocialIdentityResolver) createAccount(ctx context.Context, profile *ExternalProfile) (*Account, error) {
	account, err := NewAccount(profile.Email, "", profile.GivenName, profile.FamilyName)
	if err != nil {
		return nil, err
	}
	account.AvatarURL = profile.AvatarURL
	account.EmailVerified = true

	if err := r.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return r.accounts.GetByEmail(ctx, profile.Email)
		}
		return nil, err
	}
	return account, nil
}

func (r *SocialIdentityResolver) createLink(ctx context.Context, accountID ulid.ULID, profile *ExternalProfile) (*SocialLink, error) {
	link := &SocialLink{
		ID:            ulid.Make(),
		AccountID:     accountID,
		Provider:      profile.Provider,
		ProviderID:    profile.ProviderID,
		ProviderEmail: profile.Email,
		ProviderData:  profile.Raw,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.links.Create(ctx, link); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, oops.Code("SOCIAL_LINK_CREATE_FAILED").
			With("provider", string(profile.Provider)).
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return link, nil
}

func (r *SocialIdentityResolver) linkedAccount(ctx context.Context, link *SocialLink) (*Account, error) {
	account, err := r.accounts.GetByID(ctx, link.AccountID)
	if err != nil {
		return nil, oops.Code("SOCIAL_RESOLVE_FAILED").
			With("operation", "get linked account").
			With("account_id", link.AccountID.String()).
			Wrap(err)
	}
	return account, nil
}
