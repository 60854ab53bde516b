// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/samber/oops"
)

// MailTimeout bounds a single mail dispatch.
const MailTimeout = 10 * time.Second

// Message is an outbound email.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Template string // template name, for metrics and event consumers
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Mail template names.
const (
	TemplateVerification  = "verification"
	TemplateWelcome       = "welcome"
	TemplatePasswordReset = "password_reset"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "verification"}}<p>Hi {{.Name}},</p>
<p>Your verification code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.Minutes}} minutes.</p>{{end}}
{{define "welcome"}}<p>Welcome, {{.Name}}!</p>
<p>Your email address is verified and your account is ready.</p>{{end}}
{{define "password_reset"}}<p>Hi {{.Name}},</p>
<p>Use this token to reset your password: <code>{{.Token}}</code></p>
<p>It expires in {{.Minutes}} minutes. If you did not ask for a reset, ignore this email.</p>{{end}}
`))

var mailSubjects = map[string]string{
	TemplateVerification:  "Verify your email address",
	TemplateWelcome:       "Welcome aboard",
	TemplatePasswordReset: "Reset your password",
}

type mailData struct {
	Name    string
	Code    string
	Token   string
	Minutes int
}

// renderMessage builds the message for the named template.
func renderMessage(name string, account *Account, data mailData) (Message, error) {
	data.Name = displayName(account)
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return Message{
		To:       account.Email,
		Subject:  mailSubjects[name],
		HTML:     buf.String(),
		Template: name,
	}, nil
}

func displayName(account *Account) string {
	if account.FirstName != "" {
		return account.FirstName
	}
	return account.Email
}
