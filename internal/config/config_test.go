// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/pkg/errutil"
)

const (
	accessSecret  = "access-secret-0123456789abcdef0123"
	refreshSecret = "refresh-secret-0123456789abcdef012"
	codeSecret    = "code-secret-0123456789abcdef012345"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noDotEnv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func validConfig() Config {
	cfg := Default()
	cfg.Auth.AccessSecret = accessSecret
	cfg.Auth.RefreshSecret = refreshSecret
	cfg.Auth.CodeSecret = codeSecret
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{DotEnv: noDotEnv(t)})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, MailLog, cfg.Mail.Driver)
	assert.Equal(t, time.Hour, cfg.Storage.JanitorInterval)
	assert.Equal(t, 587, cfg.Mail.SMTP.Port)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "config.yaml", `
http:
  addr: ":7000"
  metrics_addr: "127.0.0.1:9999"
log:
  format: text
  level: debug
storage:
  janitor_interval: 10m
oauth:
  google:
    client_id: from-file
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.Bool("unrelated", false, "not configuration")
	require.NoError(t, fs.Parse([]string{"--log-level=warn", "--unrelated"}))

	t.Setenv("HOLOAUTH_HTTP_ADDR", ":9000")
	t.Setenv("HOLOAUTH_OAUTH_GOOGLE_CLIENT_SECRET", "from-env")

	cfg, err := Load(Options{File: path, DotEnv: noDotEnv(t), Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr, "env beats file")
	assert.Equal(t, "warn", cfg.Log.Level, "changed flag beats file")
	assert.Equal(t, "text", cfg.Log.Format, "unchanged flag default does not beat file")
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.MetricsAddr)
	assert.Equal(t, 10*time.Minute, cfg.Storage.JanitorInterval)
	assert.Equal(t, "from-file", cfg.OAuth.Google.ClientID)
	assert.Equal(t, "from-env", cfg.OAuth.Google.ClientSecret)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver, "flag default applies to unset key")
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dotenv := writeFile(t, ".env", strings.Join([]string{
		"HOLOAUTH_AUTH_CODE_SECRET=" + codeSecret,
		"HOLOAUTH_AUTH_ISSUER=from-dotenv",
	}, "\n"))
	t.Cleanup(func() { _ = os.Unsetenv("HOLOAUTH_AUTH_CODE_SECRET") })
	t.Setenv("HOLOAUTH_AUTH_ISSUER", "from-env")

	cfg, err := Load(Options{DotEnv: dotenv})
	require.NoError(t, err)

	assert.Equal(t, codeSecret, cfg.Auth.CodeSecret)
	assert.Equal(t, "from-env", cfg.Auth.Issuer)
}

func TestLoad_DatabaseURL(t *testing.T) {
	t.Run("bare DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://u:p@db/holoauth")
		cfg, err := Load(Options{DotEnv: noDotEnv(t)})
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@db/holoauth", cfg.Storage.DatabaseURL)
	})

	t.Run("prefixed variable wins", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://u:p@db/other")
		t.Setenv("HOLOAUTH_STORAGE_DATABASE_URL", "postgres://u:p@db/holoauth")
		cfg, err := Load(Options{DotEnv: noDotEnv(t)})
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@db/holoauth", cfg.Storage.DatabaseURL)
	})
}

func TestLoad_ListsFromEnv(t *testing.T) {
	t.Setenv("HOLOAUTH_MAIL_KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("HOLOAUTH_OAUTH_GITHUB_SCOPES", "read:user,user:email,")

	cfg, err := Load(Options{DotEnv: noDotEnv(t)})
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Mail.Kafka.Brokers)
	assert.Equal(t, []string{"read:user", "user:email"}, cfg.OAuth.GitHub.Scopes)
}

func TestLoad_BadFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "http: [unclosed")
	_, err := Load(Options{File: path, DotEnv: noDotEnv(t)})
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_FAILED")

	_, err = Load(Options{File: filepath.Join(t.TempDir(), "absent.yaml"), DotEnv: noDotEnv(t)})
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_FAILED")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "missing access secret", mutate: func(c *Config) { c.Auth.AccessSecret = "" }},
		{name: "short code secret", mutate: func(c *Config) { c.Auth.CodeSecret = "short" }},
		{name: "identical jwt secrets", mutate: func(c *Config) { c.Auth.RefreshSecret = c.Auth.AccessSecret }},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.Driver = StoragePostgres }},
		{name: "postgres with url", mutate: func(c *Config) {
			c.Storage.Driver = StoragePostgres
			c.Storage.DatabaseURL = "postgres://localhost/holoauth"
		}, ok: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
		{name: "smtp without host", mutate: func(c *Config) { c.Mail.Driver = MailSMTP }},
		{name: "smtp configured", mutate: func(c *Config) {
			c.Mail.Driver = MailSMTP
			c.Mail.SMTP.Host = "smtp.example.com"
			c.Mail.SMTP.From = "noreply@example.com"
		}, ok: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Mail.Driver = MailKafka }},
		{name: "oauth client without redirect", mutate: func(c *Config) { c.OAuth.GitHub.ClientID = "id" }},
		{name: "bad frontend url", mutate: func(c *Config) { c.HTTP.FrontendURL = "not a url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		})
	}
}

func TestConfig_YAMLRedactsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.DatabaseURL = "postgres://holo:hunter2@db:5432/holoauth"
	cfg.Mail.SMTP.Password = "smtp-pass"
	cfg.OAuth.Google.ClientSecret = "google-secret"

	out, err := cfg.YAML()
	require.NoError(t, err)
	text := string(out)

	for _, secret := range []string{accessSecret, refreshSecret, codeSecret, "hunter2", "smtp-pass", "google-secret"} {
		assert.NotContains(t, text, secret)
	}
	assert.Contains(t, text, "[REDACTED]")
	assert.Contains(t, text, "holo:xxxxx@db:5432")
	assert.Equal(t, accessSecret, cfg.Auth.AccessSecret, "original is untouched")
}
