// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

const accountKey = "holoauth.account"

func device(c *gin.Context) auth.Device {
	return auth.Device{UserAgent: c.Request.UserAgent(), IPAddress: c.ClientIP()}
}

// bind decodes the JSON body into dst, answering 400 on failure.
func (h *handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, h.logger, auth.Classify(auth.KindValidation,
			oops.Code("HTTP_BAD_REQUEST").With("cause", err.Error()).Wrap(errBadBody)))
		return false
	}
	return true
}

// requireBearer authenticates the Authorization header and stores the account.
func (h *handler) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(c, h.logger, auth.Classify(auth.KindUnauthorized, errBearerMissing))
			return
		}
		account, err := h.flows.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.Set(accountKey, account)
		c.Next()
	}
}

func currentAccount(c *gin.Context) *auth.Account {
	return c.MustGet(accountKey).(*auth.Account)
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if !h.bind(c, &req) {
		return
	}
	pending, err := h.flows.Register(c.Request.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, pendingResponse{
		Account:  viewAccount(pending.Account),
		Message:  "registration successful, check your email for a verification code",
		Warnings: viewWarnings(pending.Warnings),
	})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.flows.Login(c.Request.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   device(c),
	})
	h.respondSession(c, session, err)
}

func (h *handler) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.flows.VerifyEmail(c.Request.Context(), currentAccount(c).ID, req.Code, device(c))
	h.respondSession(c, session, err)
}

func (h *handler) resendVerification(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	pending, err := h.flows.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, pendingResponse{
		Account:  viewAccount(pending.Account),
		Message:  "a new verification code has been sent",
		Warnings: viewWarnings(pending.Warnings),
	})
}

func (h *handler) oauthStart(c *gin.Context) {
	state, err := newState()
	if err != nil {
		writeError(c, h.logger, auth.Classify(auth.KindInternal, oops.Code("HTTP_STATE_FAILED").Wrap(err)))
		return
	}
	target, err := h.flows.SocialAuthURL(c.Param("provider"), state)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.setStateCookie(c, state)
	c.Redirect(http.StatusFound, target)
}

func (h *handler) oauthCallback(c *gin.Context) {
	stored, _ := c.Cookie(StateCookie)
	state := c.Query("state")
	h.clearStateCookie(c)
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		writeError(c, h.logger, auth.Classify(auth.KindValidation, errOAuthState))
		return
	}
	if h.opts.FrontendURL == "" {
		writeError(c, h.logger, auth.Classify(auth.KindInternal, errFrontendMissing))
		return
	}

	session, err := h.flows.SocialLogin(c.Request.Context(), c.Param("provider"), c.Query("code"), device(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.setRefreshCookie(c, session.Tokens.RefreshToken)
	c.Redirect(http.StatusFound, callbackURL(h.opts.FrontendURL, session.Tokens.AccessToken))
}

func (h *handler) socialRegister(c *gin.Context) {
	var req socialRegisterRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.flows.SocialRegister(c.Request.Context(), auth.SocialRegisterInput{
		Provider:  req.Provider,
		Code:      req.Code,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, device(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.setRefreshCookie(c, session.Tokens.RefreshToken)
	c.JSON(http.StatusCreated, viewSession(session))
}

func (h *handler) socialLink(c *gin.Context) {
	var req socialLinkRequest
	if !h.bind(c, &req) {
		return
	}
	link, err := h.flows.LinkSocialIdentity(c.Request.Context(), currentAccount(c).ID, req.Provider, req.Code)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, linkResponse{
		Provider:   string(link.Provider),
		ProviderID: link.ProviderID,
		Email:      link.ProviderEmail,
		CreatedAt:  link.CreatedAt,
	})
}

func (h *handler) refresh(c *gin.Context) {
	raw, err := c.Cookie(RefreshCookie)
	if err != nil || raw == "" {
		writeError(c, h.logger, auth.Classify(auth.KindUnauthorized, errRefreshMissing))
		return
	}
	session, err := h.flows.RefreshTokens(c.Request.Context(), raw, device(c))
	if err != nil {
		h.clearRefreshCookie(c)
	}
	h.respondSession(c, session, err)
}

func (h *handler) logout(c *gin.Context) {
	raw, _ := c.Cookie(RefreshCookie)
	h.flows.Logout(c.Request.Context(), currentAccount(c).ID, raw)
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *handler) logoutAll(c *gin.Context) {
	h.flows.LogoutAll(c.Request.Context(), currentAccount(c).ID)
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, messageResponse{Message: "logged out from all devices"})
}

func (h *handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, viewAccount(currentAccount(c)))
}

func (h *handler) deactivate(c *gin.Context) {
	if err := h.flows.DeactivateAccount(c.Request.Context(), currentAccount(c).ID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *handler) forgotPassword(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.flows.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, messageResponse{
		Message: "if the address is registered, a reset token has been sent",
	})
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.flows.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "password updated, sign in again"})
}

// respondSession writes a session body and its refresh cookie, or err.
func (h *handler) respondSession(c *gin.Context, session *auth.Session, err error) {
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.setRefreshCookie(c, session.Tokens.RefreshToken)
	c.JSON(http.StatusOK, viewSession(session))
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// callbackURL places the access token in the fragment of the frontend
// callback so it never reaches server logs.
func callbackURL(frontend, accessToken string) string {
	return strings.TrimSuffix(frontend, "/") + "/auth/callback#" +
		url.Values{"access_token": {accessToken}}.Encode()
}
