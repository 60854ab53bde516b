// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/httpapi"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind auth.Kind
		want int
	}{
		{auth.KindValidation, http.StatusBadRequest},
		{auth.KindConflict, http.StatusConflict},
		{auth.KindUnauthorized, http.StatusUnauthorized},
		{auth.KindNotFound, http.StatusNotFound},
		{auth.KindRateLimited, http.StatusTooManyRequests},
		{auth.KindProviderExchangeFailed, http.StatusBadGateway},
		{auth.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, httpapi.StatusFor(tt.kind))
		})
	}
}

func TestRegister(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/register", body: map[string]string{
		"email": "Ada@Example.com", "password": "correct horse battery",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[struct {
		Account struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
		} `json:"account"`
	}](t, resp)
	assert.Equal(t, "ada@example.com", body.Account.Email)
	assert.False(t, body.Account.EmailVerified)
	assert.Equal(t, "ada@example.com", f.mail.last(t).To)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/register", body: map[string]string{
		"email": "ada@example.com", "password": "another password",
	}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", decode[errorBody](t, resp).Error)
}

func TestRegister_BadBody(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/register", body: map[string]string{"email": "x@example.com"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decode[errorBody](t, resp).Error)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/register", body: map[string]string{
		"email": "x@example.com", "password": "short",
	}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_SetsRefreshCookie(t *testing.T) {
	f := newAPI(t)
	session, cookie := f.signUp(t, "ada@example.com")

	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.True(t, session.Account.HasPassword)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/auth", cookie.Path)
	assert.Equal(t, int(auth.RefreshTokenTTL.Seconds()), cookie.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
		"email": "ada@example.com", "password": "wrong password!",
	}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMe_RequiresBearer(t *testing.T) {
	f := newAPI(t)
	session, _ := f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodGet, path: "/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodGet, path: "/auth/me", bearer: "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodGet, path: "/auth/me", bearer: session.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}](t, resp)
	assert.Equal(t, session.Account.ID, me.ID)
}

func TestVerifyEmail(t *testing.T) {
	f := newAPI(t)
	session, _ := f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/verify-email",
		bearer: session.AccessToken, body: map[string]string{"code": "000000"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	failed := decode[errorBody](t, resp)
	require.NotNil(t, failed.RemainingAttempts)
	assert.Equal(t, auth.MaxVerificationAttempts-1, *failed.RemainingAttempts)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/verify-email",
		bearer: session.AccessToken, body: map[string]string{"code": "246810"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, cookieNamed(resp, httpapi.RefreshCookie))
	assert.True(t, decode[sessionBody](t, resp).Account.EmailVerified)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/resend-verification",
		body: map[string]string{"email": "ada@example.com"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResendVerification(t *testing.T) {
	f := newAPI(t)
	f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/resend-verification",
		body: map[string]string{"email": "ada@example.com"}})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/resend-verification",
		body: map[string]string{"email": "nobody@example.com"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefresh_RotatesCookie(t *testing.T) {
	f := newAPI(t)
	_, cookie := f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/refresh"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := cookieNamed(resp, httpapi.RefreshCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	// The old token is spent; the failed attempt clears the cookie.
	resp = f.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	cleared := cookieNamed(resp, httpapi.RefreshCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestLogout(t *testing.T) {
	f := newAPI(t)
	session, cookie := f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/logout",
		bearer: session.AccessToken, cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := cookieNamed(resp, httpapi.RefreshCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutAll(t *testing.T) {
	f := newAPI(t)
	session, first := f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
		"email": "ada@example.com", "password": "correct horse battery",
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := cookieNamed(resp, httpapi.RefreshCookie)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/logout-all", bearer: session.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range []*http.Cookie{first, second} {
		resp = f.do(t, request{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{c}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestPasswordReset(t *testing.T) {
	f := newAPI(t)
	f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/forgot-password",
		body: map[string]string{"email": "nobody@example.com"}})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/forgot-password",
		body: map[string]string{"email": "ada@example.com"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	token := extractResetToken(t, f.mail.last(t).HTML)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/reset-password",
		body: map[string]string{"token": token, "new_password": "a brand new secret"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/reset-password",
		body: map[string]string{"token": token, "new_password": "yet another secret"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
		"email": "ada@example.com", "password": "a brand new secret",
	}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeactivate(t *testing.T) {
	f := newAPI(t)
	session, _ := f.signUp(t, "ada@example.com")

	resp := f.do(t, request{method: http.MethodDelete, path: "/auth/me", bearer: session.AccessToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodGet, path: "/auth/me", bearer: session.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOAuthFlow(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, request{method: http.MethodGet, path: "/auth/oauth/google"})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	state := stateFrom(t, resp.Header.Get("Location"))
	stateCookie := cookieNamed(resp, httpapi.StateCookie)
	require.NotNil(t, stateCookie)
	assert.Equal(t, state, stateCookie.Value)
	assert.Equal(t, http.SameSiteLaxMode, stateCookie.SameSite)

	q := url.Values{"state": {state}, "code": {"good-code"}}
	resp = f.do(t, request{method: http.MethodGet, path: "/auth/oauth/google/callback?" + q.Encode(),
		cookies: []*http.Cookie{stateCookie}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example", location.Host)
	assert.Equal(t, "/auth/callback", location.Path)
	fragment, err := url.ParseQuery(location.Fragment)
	require.NoError(t, err)
	access := fragment.Get("access_token")
	require.NotEmpty(t, access)
	assert.NotNil(t, cookieNamed(resp, httpapi.RefreshCookie))

	resp = f.do(t, request{method: http.MethodGet, path: "/auth/me", bearer: access})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gina@example.com", decode[struct {
		Email string `json:"email"`
	}](t, resp).Email)
}

func TestOAuthCallback_StateMismatch(t *testing.T) {
	f := newAPI(t)

	q := url.Values{"state": {"forged"}, "code": {"good-code"}}
	resp := f.do(t, request{method: http.MethodGet, path: "/auth/oauth/google/callback?" + q.Encode(),
		cookies: []*http.Cookie{{Name: httpapi.StateCookie, Value: "expected"}}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, request{method: http.MethodGet, path: "/auth/oauth/google/callback?" + q.Encode()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOAuthCallback_ExchangeFails(t *testing.T) {
	f := newAPI(t)

	q := url.Values{"state": {"s1"}, "code": {"bad-code"}}
	resp := f.do(t, request{method: http.MethodGet, path: "/auth/oauth/google/callback?" + q.Encode(),
		cookies: []*http.Cookie{{Name: httpapi.StateCookie, Value: "s1"}}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "provider_exchange_failed", decode[errorBody](t, resp).Error)
}

func TestOAuthStart_UnknownProvider(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, request{method: http.MethodGet, path: "/auth/oauth/myspace"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSocialRegisterAndLink(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, request{method: http.MethodPost, path: "/auth/social/register", body: map[string]string{
		"provider": "google", "code": "good-code", "first_name": "Georgina",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decode[sessionBody](t, resp)
	assert.False(t, session.Account.HasPassword)
	assert.True(t, session.Account.EmailVerified)

	resp = f.do(t, request{method: http.MethodPost, path: "/auth/social/register", body: map[string]string{
		"provider": "google", "code": "good-code",
	}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	other, _ := f.signUp(t, "ada@example.com")
	resp = f.do(t, request{method: http.MethodPost, path: "/auth/social/link", bearer: other.AccessToken,
		body: map[string]string{"provider": "google", "code": "good-code"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestNoRoute(t *testing.T) {
	f := newAPI(t)

	resp := f.do(t, request{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[errorBody](t, resp).Error)
}
