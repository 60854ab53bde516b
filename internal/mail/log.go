// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/holomush/holoauth/internal/auth"
)

// LogMailer writes messages to the log instead of sending them.
// Bodies are logged at debug level only.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs msg.
func (m *LogMailer) Send(ctx context.Context, msg auth.Message) error {
	m.logger.InfoContext(ctx, "mail not delivered (log mailer)",
		"to", msg.To,
		"subject", msg.Subject,
		"template", msg.Template)
	m.logger.DebugContext(ctx, "mail body", "template", msg.Template, "html", msg.HTML)
	return nil
}
