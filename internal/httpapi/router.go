// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the credential flows over HTTP with gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/observability"
)

// Flows is the part of *auth.CredentialService the transport drives.
type Flows interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.PendingVerification, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	VerifyEmail(ctx context.Context, accountID ulid.ULID, code string, device auth.Device) (*auth.Session, error)
	ResendVerification(ctx context.Context, email string) (*auth.PendingVerification, error)
	RefreshTokens(ctx context.Context, raw string, device auth.Device) (*auth.Session, error)
	Logout(ctx context.Context, accountID ulid.ULID, raw string)
	LogoutAll(ctx context.Context, accountID ulid.ULID)
	Authenticate(ctx context.Context, accessToken string) (*auth.Account, error)
	DeactivateAccount(ctx context.Context, accountID ulid.ULID) error
	SocialAuthURL(provider, state string) (string, error)
	SocialLogin(ctx context.Context, provider, code string, device auth.Device) (*auth.Session, error)
	SocialRegister(ctx context.Context, in auth.SocialRegisterInput, device auth.Device) (*auth.Session, error)
	LinkSocialIdentity(ctx context.Context, accountID ulid.ULID, provider, code string) (*auth.SocialLink, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Options configures the router.
type Options struct {
	// SecureCookies sets the Secure attribute on every cookie.
	SecureCookies bool
	// FrontendURL receives the browser after an OAuth callback.
	FrontendURL string
	Logger      *slog.Logger
}

type handler struct {
	flows  Flows
	opts   Options
	logger *slog.Logger
}

// NewRouter builds the gin engine serving every route under /auth.
func NewRouter(flows Flows, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{flows: flows, opts: opts, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(h.recovery(), h.accessLog())

	g := r.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/resend-verification", h.resendVerification)
	g.GET("/oauth/:provider", h.oauthStart)
	g.GET("/oauth/:provider/callback", h.oauthCallback)
	g.POST("/social/register", h.socialRegister)
	g.POST("/refresh", h.refresh)
	g.POST("/forgot-password", h.forgotPassword)
	g.POST("/reset-password", h.resetPassword)

	authed := g.Group("", h.requireBearer())
	authed.POST("/verify-email", h.verifyEmail)
	authed.POST("/social/link", h.socialLink)
	authed.POST("/logout", h.logout)
	authed.POST("/logout-all", h.logoutAll)
	authed.GET("/me", h.me)
	authed.DELETE("/me", h.deactivate)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, h.logger, auth.Classify(auth.KindNotFound, errRouteNotFound))
	})
	return r
}

// accessLog records request metrics and a debug line per request.
func (h *handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		observability.RecordHTTPRequest(route, status)
		h.logger.DebugContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start))
	}
}

// recovery turns a handler panic into a 500 without leaking the panic value.
func (h *handler) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		h.logger.ErrorContext(c.Request.Context(), "panic in http handler",
			"route", c.FullPath(),
			"panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: string(auth.KindInternal), Message: internalMessage})
	})
}
