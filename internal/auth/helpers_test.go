// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memstore"
)

// recordingMailer captures sent messages and can be told to fail.
type recordingMailer struct {
	mu   sync.Mutex
	sent []auth.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg auth.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("mail dispatched without a deadline")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) Sent() []auth.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.Message(nil), m.sent...)
}

// stubExchanger returns a fixed profile or error for any code.
type stubExchanger struct {
	profile *auth.ExternalProfile
	err     error
	calls   int
}

func (s *stubExchanger) Exchange(ctx context.Context, _ string) (*auth.ExternalProfile, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("exchange without a deadline")
	}
	p := *s.profile
	return &p, nil
}

func (s *stubExchanger) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

// fixture wires a CredentialService over memstore repositories.
type fixture struct {
	store   *memstore.Store
	clock   *fakeClock
	mailer  *recordingMailer
	google  *stubExchanger
	github  *stubExchanger
	codec   *auth.TokenCodec
	service *auth.CredentialService
}

func newFixture(t *testing.T, opts ...func(*auth.Dependencies)) *fixture {
	t.Helper()

	f := &fixture{
		store:  memstore.New(),
		clock:  newFakeClock(),
		mailer: &recordingMailer{},
		google: &stubExchanger{profile: &auth.ExternalProfile{
			ProviderID: "42",
			Email:      "bob@example.com",
			GivenName:  "Bob",
			FamilyName: "Builder",
			Raw:        []byte(`{"id":"42"}`),
		}},
		github: &stubExchanger{profile: &auth.ExternalProfile{
			ProviderID: "1001",
			Email:      "carol@example.com",
			GivenName:  "Carol",
		}},
	}

	sessions, err := auth.NewSessionStore(f.store.RefreshTokens, auth.WithSessionClock(f.clock.Now))
	require.NoError(t, err)
	verification, err := auth.NewVerificationChallenge(f.store.VerificationCodes, testCodeSecret,
		auth.WithCodeGenerator(fixedCode("123456")),
		auth.WithVerificationClock(f.clock.Now))
	require.NoError(t, err)
	social, err := auth.NewSocialIdentityResolver(map[auth.Provider]auth.ProfileExchanger{
		auth.ProviderGoogle: f.google,
		auth.ProviderGitHub: f.github,
	}, f.store.Accounts, f.store.SocialLinks)
	require.NoError(t, err)
	f.codec = newCodec(t, auth.WithTokenClock(f.clock.Now))

	deps := auth.Dependencies{
		Accounts:     f.store.Accounts,
		Resets:       f.store.PasswordResets,
		Sessions:     sessions,
		Verification: verification,
		Social:       social,
		Tokens:       f.codec,
		Hasher:       auth.NewArgon2idHasher(),
		Mailer:       f.mailer,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          f.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.service, err = auth.NewCredentialService(deps)
	require.NoError(t, err)
	return f
}

// flakyAccounts fails the next failUpdates calls to Update.
type flakyAccounts struct {
	auth.AccountRepository
	mu          sync.Mutex
	failUpdates int
}

func (a *flakyAccounts) Update(ctx context.Context, account *auth.Account) error {
	a.mu.Lock()
	fail := a.failUpdates > 0
	if fail {
		a.failUpdates--
	}
	a.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return a.AccountRepository.Update(ctx, account)
}

var resetTokenPattern = regexp.MustCompile(`<code>([0-9a-f]{64})</code>`)

// extractResetToken pulls the raw reset token out of a password reset email.
func extractResetToken(t *testing.T, html string) string {
	t.Helper()
	m := resetTokenPattern.FindStringSubmatch(html)
	require.Len(t, m, 2, "no reset token in %q", html)
	return m[1]
}
