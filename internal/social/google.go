// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package social

import (
	"context"

	"github.com/samber/oops"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/holomush/holoauth/internal/auth"
)

// GoogleExchanger exchanges Google authorization codes and reads the userinfo profile.
type GoogleExchanger struct {
	config *oauth2.Config
	s      settings
}

// NewGoogleExchanger creates a GoogleExchanger.
func NewGoogleExchanger(cfg Config, opts ...Option) (*GoogleExchanger, error) {
	if err := cfg.validate(auth.ProviderGoogle); err != nil {
		return nil, err
	}
	s := newSettings(opts)
	endpoint := google.Endpoint
	if s.endpoint != nil {
		endpoint = *s.endpoint
	}
	return &GoogleExchanger{
		config: oauthConfig(cfg, endpoint, []string{
			googleoauth2.OpenIDScope,
			googleoauth2.UserinfoEmailScope,
			googleoauth2.UserinfoProfileScope,
		}),
		s: s,
	}, nil
}

// AuthCodeURL returns the Google consent URL.
func (g *GoogleExchanger) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for a token and fetches the userinfo profile.
func (g *GoogleExchanger) Exchange(ctx context.Context, code string) (*auth.ExternalProfile, error) {
	ctx = g.s.clientContext(ctx)

	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, oops.Code("GOOGLE_TOKEN_EXCHANGE_FAILED").Wrap(err)
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(g.config.Client(ctx, tok))}
	if g.s.apiBase != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(g.s.apiBase))
	}
	svc, err := googleoauth2.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, oops.Code("GOOGLE_SERVICE_FAILED").Wrap(err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, oops.Code("GOOGLE_USERINFO_FAILED").Wrap(err)
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return nil, oops.Code("GOOGLE_EMAIL_UNVERIFIED").
			With("provider_id", info.Id).
			Errorf("google account email is not verified")
	}

	raw, err := info.MarshalJSON()
	if err != nil {
		return nil, oops.Code("GOOGLE_USERINFO_FAILED").With("operation", "encode profile").Wrap(err)
	}
	return &auth.ExternalProfile{
		Provider:   auth.ProviderGoogle,
		ProviderID: info.Id,
		Email:      info.Email,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		AvatarURL:  info.Picture,
		Raw:        raw,
	}, nil
}
