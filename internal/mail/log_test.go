// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/mail"
)

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	require.NoError(t, mail.NewLogMailer(logger).Send(context.Background(), testMessage()))

	out := buf.String()
	assert.Contains(t, out, "to=alice@example.com")
	assert.Contains(t, out, "template=verification")
	assert.NotContains(t, out, "123456")
}
