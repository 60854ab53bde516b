// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/holomush/holoauth/internal/auth"
)

const (
	githubAPIBase    = "https://api.github.com"
	githubAPIVersion = "2022-11-28"
	maxProfileBytes  = 1 << 20
)

// GitHubExchanger exchanges GitHub authorization codes and reads the user
// and primary email from the REST API.
type GitHubExchanger struct {
	config  *oauth2.Config
	s       settings
	apiBase string
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHubExchanger creates a GitHubExchanger.
func NewGitHubExchanger(cfg Config, opts ...Option) (*GitHubExchanger, error) {
	if err := cfg.validate(auth.ProviderGitHub); err != nil {
		return nil, err
	}
	s := newSettings(opts)
	endpoint := github.Endpoint
	if s.endpoint != nil {
		endpoint = *s.endpoint
	}
	apiBase := githubAPIBase
	if s.apiBase != "" {
		apiBase = strings.TrimSuffix(s.apiBase, "/")
	}
	return &GitHubExchanger{
		config:  oauthConfig(cfg, endpoint, []string{"read:user", "user:email"}),
		s:       s,
		apiBase: apiBase,
	}, nil
}

// AuthCodeURL returns the GitHub consent URL.
func (g *GitHubExchanger) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange trades code for a token, then reads /user and /user/emails.
func (g *GitHubExchanger) Exchange(ctx context.Context, code string) (*auth.ExternalProfile, error) {
	ctx = g.s.clientContext(ctx)

	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, oops.Code("GITHUB_TOKEN_EXCHANGE_FAILED").Wrap(err)
	}
	client := g.config.Client(ctx, tok)

	rawUser, err := g.get(ctx, client, "/user")
	if err != nil {
		return nil, err
	}
	var user githubUser
	if err := json.Unmarshal(rawUser, &user); err != nil {
		return nil, oops.Code("GITHUB_PROFILE_INVALID").With("path", "/user").Wrap(err)
	}

	rawEmails, err := g.get(ctx, client, "/user/emails")
	if err != nil {
		return nil, err
	}
	var emails []githubEmail
	if err := json.Unmarshal(rawEmails, &emails); err != nil {
		return nil, oops.Code("GITHUB_PROFILE_INVALID").With("path", "/user/emails").Wrap(err)
	}
	email := primaryEmail(emails)
	if email == "" {
		return nil, oops.Code("GITHUB_NO_VERIFIED_EMAIL").
			With("provider_id", user.ID).
			Errorf("github account has no verified primary email")
	}

	given, family := splitName(user.Name)
	if given == "" {
		given = user.Login
	}
	raw, err := withEmail(rawUser, email)
	if err != nil {
		return nil, err
	}

	var providerID string
	if user.ID != 0 {
		providerID = strconv.FormatInt(user.ID, 10)
	}
	return &auth.ExternalProfile{
		Provider:   auth.ProviderGitHub,
		ProviderID: providerID,
		Email:      email,
		GivenName:  given,
		FamilyName: family,
		AvatarURL:  user.AvatarURL,
		Raw:        raw,
	}, nil
}

func (g *GitHubExchanger) get(ctx context.Context, client *http.Client, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return nil, oops.Code("GITHUB_REQUEST_FAILED").With("path", path).Wrap(err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)

	resp, err := client.Do(req)
	if err != nil {
		return nil, oops.Code("GITHUB_REQUEST_FAILED").With("path", path).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, oops.Code("GITHUB_REQUEST_FAILED").With("path", path).Wrap(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code("GITHUB_REQUEST_FAILED").
			With("path", path).
			With("status", resp.StatusCode).
			Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func primaryEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

// withEmail returns the /user payload with its email field set to the primary address.
func withEmail(rawUser []byte, email string) ([]byte, error) {
	var payload map[string]any
	if err := json.Unmarshal(rawUser, &payload); err != nil {
		return nil, oops.Code("GITHUB_PROFILE_INVALID").With("path", "/user").Wrap(err)
	}
	payload["email"] = email
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, oops.Code("GITHUB_PROFILE_INVALID").With("operation", "encode profile").Wrap(err)
	}
	return out, nil
}
