// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

const internalMessage = "internal server error"

var (
	errRouteNotFound   = errors.New("route not found")
	errBadBody         = errors.New("request body is not valid JSON")
	errBearerMissing   = errors.New("bearer token required")
	errOAuthState      = errors.New("oauth state mismatch")
	errRefreshMissing  = errors.New("refresh token cookie required")
	errFrontendMissing = errors.New("frontend url is not configured")
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindRateLimited:
		return http.StatusTooManyRequests
	case auth.KindProviderExchangeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the error's kind and status. Internal
// errors are logged and their message replaced.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := auth.KindOf(err)
	body := errorBody{Error: string(kind), Message: err.Error()}
	if kind == auth.KindInternal {
		errutil.LogError(c.Request.Context(), logger, "request failed", err)
		body.Message = internalMessage
	}
	if remaining, ok := auth.RemainingAttempts(err); ok {
		body.RemainingAttempts = &remaining
	}
	c.AbortWithStatusJSON(StatusFor(kind), body)
}
