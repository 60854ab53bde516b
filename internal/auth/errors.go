// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Kind classifies a flow error for the caller boundary.
// Kind implements error so it can sit in an error chain and be matched with errors.Is.
type Kind string

// Error kinds returned by CredentialService flows.
const (
	KindValidation             Kind = "validation"
	KindConflict               Kind = "conflict"
	KindUnauthorized           Kind = "unauthorized"
	KindNotFound               Kind = "not_found"
	KindRateLimited            Kind = "rate_limited"
	KindProviderExchangeFailed Kind = "provider_exchange_failed"
	KindInternal               Kind = "internal"
)

func (k Kind) Error() string { return string(k) }

// Reason sentinels. Component errors wrap exactly one of these.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned by repositories on a unique constraint violation.
	ErrDuplicate = errors.New("already exists")

	ErrExpired          = errors.New("expired")
	ErrRevoked          = errors.New("revoked")
	ErrAttemptsExceeded = errors.New("maximum verification attempts exceeded")
	ErrAlreadyVerified  = errors.New("email is already verified")
	ErrRateLimited      = errors.New("too many verification codes requested")

	ErrTokenExpired   = errors.New("token expired")
	ErrBadSignature   = errors.New("token signature invalid")
	ErrWrongTokenType = errors.New("wrong token type")

	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrProviderExchange    = errors.New("provider exchange failed")
	ErrLinkAlreadyExists   = errors.New("social identity is already linked to an account")
)

// InvalidCodeError reports a verification code mismatch.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.Remaining)
}

// RemainingAttempts extracts the remaining verification attempts from err.
func RemainingAttempts(err error) (int, bool) {
	var invalid *InvalidCodeError
	if errors.As(err, &invalid) {
		return invalid.Remaining, true
	}
	return 0, false
}

// kindError tags an error chain with a Kind without altering its message.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

// Classify tags err with kind. A nil err stays nil.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return KindInternal
}

// newKindError builds a classified oops error with a fresh message.
func newKindError(kind Kind, code, format string, args ...any) error {
	return oops.Code(code).Wrap(Classify(kind, fmt.Errorf(format, args...)))
}

// internalError wraps an unexpected failure from a collaborator.
func internalError(code, operation string, err error) error {
	return Classify(KindInternal, oops.Code(code).With("operation", operation).Wrap(err))
}
