// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail provides auth.Mailer implementations: direct SMTP delivery,
// Kafka mail events for an external mail service, and a log-only mailer.
package mail

import (
	"context"
	"crypto/tls"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// DisableStartTLS skips STARTTLS even when the server offers it.
	DisableStartTLS bool
}

// SMTPMailer delivers messages over SMTP, one connection per message.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer net.Dialer
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("from", cfg.From).Wrap(err)
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// Send delivers msg. The connection is bounded by ctx's deadline and closed
// when ctx is cancelled.
func (m *SMTPMailer) Send(ctx context.Context, msg auth.Message) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	errb := oops.Code("SMTP_SEND_FAILED").With("addr", addr).With("template", msg.Template)

	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errb.With("operation", "dial").Wrap(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errb.With("operation", "handshake").Wrap(err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok && !m.cfg.DisableStartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return errb.With("operation", "starttls").Wrap(err)
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return errb.With("operation", "auth").Wrap(err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return errb.With("operation", "mail from").Wrap(err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return errb.With("operation", "rcpt to").Wrap(err)
	}

	w, err := c.Data()
	if err != nil {
		return errb.With("operation", "data").Wrap(err)
	}
	if _, err := w.Write(m.compose(msg)); err != nil {
		_ = w.Close()
		return errb.With("operation", "write body").Wrap(err)
	}
	if err := w.Close(); err != nil {
		return errb.With("operation", "end data").Wrap(err)
	}
	if err := c.Quit(); err != nil {
		return errb.With("operation", "quit").Wrap(err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg auth.Message) []byte {
	from := (&mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}).String()
	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		msg.HTML,
	}
	return []byte(strings.Join(headers, "\r\n"))
}
