// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoauth configuration from a YAML file, command-line
// flags, a .env file and the environment, in increasing precedence.
package config

import (
	"time"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Mail drivers.
const (
	MailLog   = "log"
	MailSMTP  = "smtp"
	MailKafka = "kafka"
)

// Config is the effective service configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http" yaml:"http" envPrefix:"HTTP_"`
	Log     LogConfig     `koanf:"log" yaml:"log" envPrefix:"LOG_"`
	Storage StorageConfig `koanf:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth" envPrefix:"AUTH_"`
	Mail    MailConfig    `koanf:"mail" yaml:"mail" envPrefix:"MAIL_"`
	OAuth   OAuthConfig   `koanf:"oauth" yaml:"oauth" envPrefix:"OAUTH_"`
}

// HTTPConfig configures the listeners.
type HTTPConfig struct {
	Addr        string `koanf:"addr" yaml:"addr" env:"ADDR" validate:"required"`
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr" env:"METRICS_ADDR"`
	ControlAddr string `koanf:"control_addr" yaml:"control_addr" env:"CONTROL_ADDR"`
	// ControlTLS serves the gRPC health endpoint with mutual TLS using
	// certificates from ControlCertsDir, generated on first start.
	ControlTLS      bool   `koanf:"control_tls" yaml:"control_tls" env:"CONTROL_TLS"`
	ControlCertsDir string `koanf:"control_certs_dir" yaml:"control_certs_dir" env:"CONTROL_CERTS_DIR"`
	SecureCookies   bool   `koanf:"secure_cookies" yaml:"secure_cookies" env:"SECURE_COOKIES"`
	// FrontendURL is where OAuth callbacks redirect after login.
	FrontendURL string `koanf:"frontend_url" yaml:"frontend_url" env:"FRONTEND_URL" validate:"omitempty,url"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" env:"FORMAT" validate:"oneof=json text"`
	Level  string `koanf:"level" yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
}

// StorageConfig selects and configures persistence.
type StorageConfig struct {
	Driver          string        `koanf:"driver" yaml:"driver" env:"DRIVER" validate:"oneof=memory postgres"`
	DatabaseURL     string        `koanf:"database_url" yaml:"database_url" env:"DATABASE_URL" validate:"required_if=Driver postgres"`
	AutoMigrate     bool          `koanf:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	MaxConns        int32         `koanf:"max_conns" yaml:"max_conns" env:"MAX_CONNS" validate:"gte=0"`
	JanitorInterval time.Duration `koanf:"janitor_interval" yaml:"janitor_interval" env:"JANITOR_INTERVAL" validate:"gte=0"`
}

// AuthConfig holds signing secrets.
type AuthConfig struct {
	AccessSecret  string `koanf:"access_secret" yaml:"access_secret" env:"ACCESS_SECRET" validate:"required,min=32"`
	RefreshSecret string `koanf:"refresh_secret" yaml:"refresh_secret" env:"REFRESH_SECRET" validate:"required,min=32,nefield=AccessSecret"`
	CodeSecret    string `koanf:"code_secret" yaml:"code_secret" env:"CODE_SECRET" validate:"required,min=32"`
	Issuer        string `koanf:"issuer" yaml:"issuer" env:"ISSUER"`
}

// MailConfig selects and configures mail delivery.
type MailConfig struct {
	Driver string      `koanf:"driver" yaml:"driver" env:"DRIVER" validate:"oneof=log smtp kafka"`
	SMTP   SMTPConfig  `koanf:"smtp" yaml:"smtp" envPrefix:"SMTP_"`
	Kafka  KafkaConfig `koanf:"kafka" yaml:"kafka" envPrefix:"KAFKA_"`
}

// SMTPConfig configures the SMTP mailer.
type SMTPConfig struct {
	Host            string `koanf:"host" yaml:"host" env:"HOST"`
	Port            int    `koanf:"port" yaml:"port" env:"PORT" validate:"gte=0,lte=65535"`
	Username        string `koanf:"username" yaml:"username" env:"USERNAME"`
	Password        string `koanf:"password" yaml:"password" env:"PASSWORD"`
	From            string `koanf:"from" yaml:"from" env:"FROM" validate:"omitempty,email"`
	FromName        string `koanf:"from_name" yaml:"from_name" env:"FROM_NAME"`
	DisableStartTLS bool   `koanf:"disable_starttls" yaml:"disable_starttls" env:"DISABLE_STARTTLS"`
}

// KafkaConfig configures the mail event publisher.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers" yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic   string   `koanf:"topic" yaml:"topic" env:"TOPIC"`
}

// OAuthConfig holds provider registrations.
type OAuthConfig struct {
	Google ProviderConfig `koanf:"google" yaml:"google" envPrefix:"GOOGLE_"`
	GitHub ProviderConfig `koanf:"github" yaml:"github" envPrefix:"GITHUB_"`
}

// ProviderConfig is one OAuth client registration. A provider without a
// client id is disabled.
type ProviderConfig struct {
	ClientID     string   `koanf:"client_id" yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `koanf:"client_secret" yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL  string   `koanf:"redirect_url" yaml:"redirect_url" env:"REDIRECT_URL" validate:"required_with=ClientID"`
	Scopes       []string `koanf:"scopes" yaml:"scopes" env:"SCOPES" envSeparator:","`
}

// Default returns the configuration used for keys no source sets.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:        ":8080",
			MetricsAddr: "127.0.0.1:9100",
			ControlAddr: "127.0.0.1:9101",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Storage: StorageConfig{
			Driver:          StorageMemory,
			JanitorInterval: time.Hour,
		},
		Auth: AuthConfig{
			Issuer: "holoauth",
		},
		Mail: MailConfig{
			Driver: MailLog,
			SMTP:   SMTPConfig{Port: 587},
			Kafka:  KafkaConfig{Topic: "holoauth.mail"},
		},
	}
}
