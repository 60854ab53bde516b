// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/holomush/holoauth/internal/auth"
)

// Cookie names and scopes.
const (
	RefreshCookie = "refresh_token"
	StateCookie   = "oauth_state"

	refreshCookiePath = "/auth"
	stateCookiePath   = "/auth/oauth"
	stateTTL          = 10 * time.Minute
)

func (h *handler) setCookie(c *gin.Context, cookie *http.Cookie) {
	cookie.HttpOnly = true
	cookie.Secure = h.opts.SecureCookies
	http.SetCookie(c.Writer, cookie)
}

// setRefreshCookie stores the refresh token for the /auth routes only.
func (h *handler) setRefreshCookie(c *gin.Context, token string) {
	h.setCookie(c, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(auth.RefreshTokenTTL / time.Second),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *handler) clearRefreshCookie(c *gin.Context) {
	h.setCookie(c, &http.Cookie{
		Name:     RefreshCookie,
		Path:     refreshCookiePath,
		MaxAge:   -1,
		SameSite: http.SameSiteStrictMode,
	})
}

// setStateCookie binds an OAuth state to the browser for the provider round trip.
func (h *handler) setStateCookie(c *gin.Context, state string) {
	h.setCookie(c, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     stateCookiePath,
		MaxAge:   int(stateTTL / time.Second),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) clearStateCookie(c *gin.Context) {
	h.setCookie(c, &http.Cookie{
		Name:     StateCookie,
		Path:     stateCookiePath,
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
}
