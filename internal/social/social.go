// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package social implements auth.ProfileExchanger for Google and GitHub.
package social

import (
	"context"
	"net/http"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/oauth2"

	"github.com/holomush/holoauth/internal/auth"
)

// Config holds the OAuth client registration for one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Enabled reports whether the provider has client credentials.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c Config) validate(provider auth.Provider) error {
	if !c.Enabled() {
		return oops.Code("SOCIAL_CONFIG_INVALID").
			With("provider", string(provider)).
			Errorf("client id and secret are required")
	}
	if c.RedirectURL == "" {
		return oops.Code("SOCIAL_CONFIG_INVALID").
			With("provider", string(provider)).
			Errorf("redirect url is required")
	}
	return nil
}

// Option customizes an exchanger.
type Option func(*settings)

type settings struct {
	httpClient *http.Client
	endpoint   *oauth2.Endpoint
	apiBase    string
}

// WithHTTPClient sets the client used for token and profile requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithEndpoint overrides the provider's OAuth endpoint.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(s *settings) {
		s.endpoint = &ep
	}
}

// WithAPIBaseURL overrides the base URL of the provider's profile API.
func WithAPIBaseURL(u string) Option {
	return func(s *settings) {
		s.apiBase = u
	}
}

func newSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// clientContext makes oauth2 use the configured HTTP client.
func (s settings) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func oauthConfig(cfg Config, endpoint oauth2.Endpoint, defaultScopes []string) *oauth2.Config {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// splitName splits a display name into given and family names on the first space.
func splitName(name string) (given, family string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// NewExchangers builds exchangers for every enabled provider.
func NewExchangers(google, github Config, opts ...Option) (map[auth.Provider]auth.ProfileExchanger, error) {
	out := make(map[auth.Provider]auth.ProfileExchanger, 2)
	if google.Enabled() {
		ex, err := NewGoogleExchanger(google, opts...)
		if err != nil {
			return nil, err
		}
		out[auth.ProviderGoogle] = ex
	}
	if github.Enabled() {
		ex, err := NewGitHubExchanger(github, opts...)
		if err != nil {
			return nil, err
		}
		out[auth.ProviderGitHub] = ex
	}
	return out, nil
}
