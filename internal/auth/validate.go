// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Input limits.
const (
	MinPasswordLength      = 8
	MaxPasswordLength      = 128
	MaxEmailLength         = 254
	MaxNameLength          = 100
	VerificationCodeLength = 6
)

var validate = validator.New()

// ValidateEmail checks that email is a syntactically valid address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return newKindError(KindValidation, "AUTH_INVALID_EMAIL", "email is required")
	}
	if len(email) > MaxEmailLength {
		return newKindError(KindValidation, "AUTH_INVALID_EMAIL", "email must be at most %d characters", MaxEmailLength)
	}
	if err := validate.Var(email, "email"); err != nil {
		return newKindError(KindValidation, "AUTH_INVALID_EMAIL", "email %q is not a valid address", email)
	}
	return nil
}

// ValidatePassword enforces password length bounds.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return newKindError(KindValidation, "AUTH_INVALID_PASSWORD", "password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return newKindError(KindValidation, "AUTH_INVALID_PASSWORD", "password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// ValidateName checks an optional profile name.
func ValidateName(field, name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) > MaxNameLength {
		return newKindError(KindValidation, "AUTH_INVALID_NAME", "%s must be at most %d characters", field, MaxNameLength)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return newKindError(KindValidation, "AUTH_INVALID_NAME", "%s contains invalid characters", field)
		}
	}
	return nil
}

// ValidateVerificationCode checks the shape of a submitted code.
func ValidateVerificationCode(code string) error {
	if err := validate.Var(code, "required,number,len=6"); err != nil {
		return newKindError(KindValidation, "AUTH_INVALID_CODE_FORMAT", "verification code must be %d digits", VerificationCodeLength)
	}
	return nil
}

// ValidateProvider parses a provider name.
func ValidateProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case ProviderGoogle, ProviderGitHub:
		return p, nil
	}
	return "", Classify(KindValidation, oops.Code("AUTH_UNSUPPORTED_PROVIDER").
		With("provider", name).
		Wrap(ErrUnsupportedProvider))
}
