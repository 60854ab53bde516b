// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		ok    bool
	}{
		{"valid", "alice@example.com", true},
		{"plus address", "alice+tag@example.co.uk", true},
		{"empty", "", false},
		{"no at", "alice.example.com", false},
		{"no domain", "alice@", false},
		{"too long", strings.Repeat("a", 250) + "@x.io", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, auth.KindValidation, auth.KindOf(err))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, auth.ValidatePassword("Passw0rd!"))
	assert.Error(t, auth.ValidatePassword("short"))
	assert.Error(t, auth.ValidatePassword(strings.Repeat("x", auth.MaxPasswordLength+1)))
	assert.NoError(t, auth.ValidatePassword(strings.Repeat("é", auth.MinPasswordLength)))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, auth.ValidateName("first_name", ""))
	assert.NoError(t, auth.ValidateName("first_name", "José"))
	assert.Error(t, auth.ValidateName("first_name", "bad\x00name"))
	assert.Error(t, auth.ValidateName("last_name", strings.Repeat("n", auth.MaxNameLength+1)))
}

func TestValidateVerificationCode(t *testing.T) {
	assert.NoError(t, auth.ValidateVerificationCode("123456"))
	for _, bad := range []string{"", "12345", "1234567", "12a456", "+12345", "12.456"} {
		err := auth.ValidateVerificationCode(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, auth.KindValidation, auth.KindOf(err), bad)
	}
}

func TestValidateProvider(t *testing.T) {
	p, err := auth.ValidateProvider("Google")
	require.NoError(t, err)
	assert.Equal(t, auth.ProviderGoogle, p)

	p, err = auth.ValidateProvider("github")
	require.NoError(t, err)
	assert.Equal(t, auth.ProviderGitHub, p)

	_, err = auth.ValidateProvider("myspace")
	assert.ErrorIs(t, err, auth.ErrUnsupportedProvider)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
}
