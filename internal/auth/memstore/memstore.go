// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides mutex-guarded in-memory implementations of the
// auth repositories. Stored values are copied on the way in and out.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Store bundles one of each repository.
type Store struct {
	Accounts          *AccountRepository
	RefreshTokens     *RefreshTokenRepository
	VerificationCodes *VerificationCodeRepository
	SocialLinks       *SocialLinkRepository
	PasswordResets    *PasswordResetRepository
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		Accounts:          NewAccountRepository(),
		RefreshTokens:     NewRefreshTokenRepository(),
		VerificationCodes: NewVerificationCodeRepository(),
		SocialLinks:       NewSocialLinkRepository(),
		PasswordResets:    NewPasswordResetRepository(),
	}
}

func notFound(entity string) error {
	return oops.Code("MEMSTORE_NOT_FOUND").With("entity", entity).Wrap(auth.ErrNotFound)
}

func duplicate(entity string) error {
	return oops.Code("MEMSTORE_DUPLICATE").With("entity", entity).Wrap(auth.ErrDuplicate)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// AccountRepository implements auth.AccountRepository.
type AccountRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.Account
	byEmail map[string]ulid.ULID
}

// NewAccountRepository creates an empty AccountRepository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

func cloneAccount(a *auth.Account) *auth.Account {
	c := *a
	c.LastLoginAt = copyTime(a.LastLoginAt)
	return &c
}

// Create implements auth.AccountRepository.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[account.Email]; ok {
		return duplicate("account")
	}
	if _, ok := r.byID[account.ID]; ok {
		return duplicate("account")
	}
	r.byID[account.ID] = cloneAccount(account)
	r.byEmail[account.Email] = account.ID
	return nil
}

// GetByID implements auth.AccountRepository.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, notFound("account")
	}
	return cloneAccount(a), nil
}

// GetByEmail implements auth.AccountRepository.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, notFound("account")
	}
	return cloneAccount(r.byID[id]), nil
}

// Update implements auth.AccountRepository.
func (r *AccountRepository) Update(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[account.ID]
	if !ok {
		return notFound("account")
	}
	if existing.Email != account.Email {
		if _, taken := r.byEmail[account.Email]; taken {
			return duplicate("account")
		}
		delete(r.byEmail, existing.Email)
		r.byEmail[account.Email] = account.ID
	}
	r.byID[account.ID] = cloneAccount(account)
	return nil
}

// RefreshTokenRepository implements auth.RefreshTokenRepository.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]*auth.RefreshToken
}

// NewRefreshTokenRepository creates an empty RefreshTokenRepository.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{byHash: make(map[string]*auth.RefreshToken)}
}

func cloneRefreshToken(t *auth.RefreshToken) *auth.RefreshToken {
	c := *t
	c.RevokedAt = copyTime(t.RevokedAt)
	return &c
}

// Create implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) Create(_ context.Context, token *auth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[token.TokenHash]; ok {
		return duplicate("refresh_token")
	}
	r.byHash[token.TokenHash] = cloneRefreshToken(token)
	return nil
}

// GetByTokenHash implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, notFound("refresh_token")
	}
	return cloneRefreshToken(t), nil
}

// Consume implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) Consume(_ context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok || t.Revoked || t.IsExpiredAt(now) {
		return nil, notFound("refresh_token")
	}
	t.Revoked = true
	t.RevokedAt = copyTime(&now)
	return cloneRefreshToken(t), nil
}

// Revoke implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) Revoke(_ context.Context, accountID ulid.ULID, tokenHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.byHash[tokenHash]; ok && t.AccountID == accountID && !t.Revoked {
		t.Revoked = true
		t.RevokedAt = copyTime(&now)
	}
	return nil
}

// RevokeAllForAccount implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) RevokeAllForAccount(_ context.Context, accountID ulid.ULID, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.byHash {
		if t.AccountID == accountID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = copyTime(&now)
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, t := range r.byHash {
		if t.ExpiresAt.Before(before) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

// VerificationCodeRepository implements auth.VerificationCodeRepository.
type VerificationCodeRepository struct {
	mu    sync.Mutex
	codes map[ulid.ULID]*auth.VerificationCode
}

// NewVerificationCodeRepository creates an empty VerificationCodeRepository.
func NewVerificationCodeRepository() *VerificationCodeRepository {
	return &VerificationCodeRepository{codes: make(map[ulid.ULID]*auth.VerificationCode)}
}

func cloneCode(c *auth.VerificationCode) *auth.VerificationCode {
	cp := *c
	cp.UsedAt = copyTime(c.UsedAt)
	return &cp
}

// Create implements auth.VerificationCodeRepository.
func (r *VerificationCodeRepository) Create(_ context.Context, code *auth.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[code.ID]; ok {
		return duplicate("verification_code")
	}
	r.codes[code.ID] = cloneCode(code)
	return nil
}

// LatestUnused implements auth.VerificationCodeRepository.
func (r *VerificationCodeRepository) LatestUnused(_ context.Context, accountID ulid.ULID) (*auth.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *auth.VerificationCode
	for _, c := range r.codes {
		if c.AccountID != accountID || c.Used {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) ||
			(c.CreatedAt.Equal(latest.CreatedAt) && c.ID.Compare(latest.ID) > 0) {
			latest = c
		}
	}
	if latest == nil {
		return nil, notFound("verification_code")
	}
	return cloneCode(latest), nil
}

// IncrementAttempts implements auth.VerificationCodeRepository.
func (r *VerificationCodeRepository) IncrementAttempts(_ context.Context, id ulid.ULID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	switch {
	case !ok || c.Used:
		return 0, notFound("verification_code")
	case c.Attempts >= c.MaxAttempts:
		return c.Attempts, oops.Code("MEMSTORE_ATTEMPTS_EXCEEDED").Wrap(auth.ErrAttemptsExceeded)
	}
	c.Attempts++
	return c.Attempts, nil
}

// MarkUsed implements auth.VerificationCodeRepository.
func (r *VerificationCodeRepository) MarkUsed(_ context.Context, id ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	switch {
	case !ok || c.Used:
		return notFound("verification_code")
	case c.Attempts >= c.MaxAttempts:
		return oops.Code("MEMSTORE_ATTEMPTS_EXCEEDED").Wrap(auth.ErrAttemptsExceeded)
	}
	c.Used = true
	c.UsedAt = copyTime(&at)
	return nil
}

// CountSince implements auth.VerificationCodeRepository.
func (r *VerificationCodeRepository) CountSince(_ context.Context, accountID ulid.ULID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.codes {
		if c.AccountID == accountID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// SocialLinkRepository implements auth.SocialLinkRepository.
type SocialLinkRepository struct {
	mu    sync.RWMutex
	links map[linkKey]*auth.SocialLink
}

type linkKey struct {
	provider   auth.Provider
	providerID string
}

// NewSocialLinkRepository creates an empty SocialLinkRepository.
func NewSocialLinkRepository() *SocialLinkRepository {
	return &SocialLinkRepository{links: make(map[linkKey]*auth.SocialLink)}
}

func cloneLink(l *auth.SocialLink) *auth.SocialLink {
	c := *l
	c.ProviderData = append([]byte(nil), l.ProviderData...)
	return &c
}

// Create implements auth.SocialLinkRepository.
func (r *SocialLinkRepository) Create(_ context.Context, link *auth.SocialLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := linkKey{link.Provider, link.ProviderID}
	if _, ok := r.links[key]; ok {
		return duplicate("social_link")
	}
	r.links[key] = cloneLink(link)
	return nil
}

// GetByProviderID implements auth.SocialLinkRepository.
func (r *SocialLinkRepository) GetByProviderID(_ context.Context, provider auth.Provider, providerID string) (*auth.SocialLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.links[linkKey{provider, providerID}]
	if !ok {
		return nil, notFound("social_link")
	}
	return cloneLink(l), nil
}

// ListByAccount implements auth.SocialLinkRepository.
func (r *SocialLinkRepository) ListByAccount(_ context.Context, accountID ulid.ULID) ([]*auth.SocialLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*auth.SocialLink
	for _, l := range r.links {
		if l.AccountID == accountID {
			out = append(out, cloneLink(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PasswordResetRepository implements auth.PasswordResetRepository.
type PasswordResetRepository struct {
	mu     sync.Mutex
	byHash map[string]*auth.PasswordReset
}

// NewPasswordResetRepository creates an empty PasswordResetRepository.
func NewPasswordResetRepository() *PasswordResetRepository {
	return &PasswordResetRepository{byHash: make(map[string]*auth.PasswordReset)}
}

// Create implements auth.PasswordResetRepository.
func (r *PasswordResetRepository) Create(_ context.Context, reset *auth.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[reset.TokenHash]; ok {
		return duplicate("password_reset")
	}
	c := *reset
	r.byHash[reset.TokenHash] = &c
	return nil
}

// Consume implements auth.PasswordResetRepository.
func (r *PasswordResetRepository) Consume(_ context.Context, tokenHash string) (*auth.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reset, ok := r.byHash[tokenHash]
	if !ok {
		return nil, notFound("password_reset")
	}
	delete(r.byHash, tokenHash)
	return reset, nil
}

// DeleteByAccount implements auth.PasswordResetRepository.
func (r *PasswordResetRepository) DeleteByAccount(_ context.Context, accountID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, reset := range r.byHash {
		if reset.AccountID == accountID {
			delete(r.byHash, hash)
		}
	}
	return nil
}

// DeleteExpired implements auth.PasswordResetRepository.
func (r *PasswordResetRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for hash, reset := range r.byHash {
		if reset.ExpiresAt.Before(before) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

// Interface checks.
var (
	_ auth.AccountRepository          = (*AccountRepository)(nil)
	_ auth.RefreshTokenRepository     = (*RefreshTokenRepository)(nil)
	_ auth.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
	_ auth.SocialLinkRepository       = (*SocialLinkRepository)(nil)
	_ auth.PasswordResetRepository    = (*PasswordResetRepository)(nil)
)
