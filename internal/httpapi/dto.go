// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"time"

	"github.com/holomush/holoauth/internal/auth"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type verifyEmailRequest struct {
	Code string `json:"code" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type socialRegisterRequest struct {
	Provider  string `json:"provider" binding:"required"`
	Code      string `json:"code" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type socialLinkRequest struct {
	Provider string `json:"provider" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type accountView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	HasPassword   bool       `json:"has_password"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func viewAccount(a *auth.Account) accountView {
	return accountView{
		ID:            a.ID.String(),
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		AvatarURL:     a.AvatarURL,
		EmailVerified: a.EmailVerified,
		HasPassword:   a.HasPassword(),
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
	}
}

type warningView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func viewWarnings(ws []auth.Warning) []warningView {
	if len(ws) == 0 {
		return nil
	}
	out := make([]warningView, len(ws))
	for i, w := range ws {
		out[i] = warningView{Code: w.Code, Message: w.Message}
	}
	return out
}

type sessionResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Account     accountView   `json:"account"`
	Warnings    []warningView `json:"warnings,omitempty"`
}

func viewSession(s *auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken: s.Tokens.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   s.Tokens.AccessExpiresAt,
		Account:     viewAccount(s.Account),
		Warnings:    viewWarnings(s.Warnings),
	}
}

type pendingResponse struct {
	Account  accountView   `json:"account"`
	Message  string        `json:"message"`
	Warnings []warningView `json:"warnings,omitempty"`
}

type linkResponse struct {
	Provider   string    `json:"provider"`
	ProviderID string    `json:"provider_id"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}
