// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account is a local identity record.
type Account struct {
	ID            ulid.ULID
	Email         string
	PasswordHash  string // empty for social-only accounts
	FirstName     string
	LastName      string
	AvatarURL     string
	EmailVerified bool
	Active        bool
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAccount creates an active Account with a normalized email.
// passwordHash may be empty for accounts created from a social identity.
func NewAccount(email, passwordHash, firstName, lastName string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}

	now := time.Now().UTC()
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPassword reports whether the account can log in with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// RecordLogin stamps the last-login time.
func (a *Account) RecordLogin(at time.Time) {
	t := at.UTC()
	a.LastLoginAt = &t
	a.UpdatedAt = t
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. Returns ErrDuplicate if the email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Update persists profile, credential and status fields.
	Update(ctx context.Context, account *Account) error
}
