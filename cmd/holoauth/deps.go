// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/control"
	"github.com/holomush/holoauth/internal/httpapi"
	"github.com/holomush/holoauth/internal/mail"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/social"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/tls"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, opts store.ConnectOptions) (*pgxpool.Pool, error)

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// MailerFactory builds the configured mailer and its close function.
	// Default: newMailer
	MailerFactory func(cfg config.MailConfig, logger *slog.Logger) (auth.Mailer, func() error, error)

	// ExchangerFactory builds the enabled social providers.
	// Default: social.NewExchangers
	ExchangerFactory func(google, github social.Config) (map[auth.Provider]auth.ProfileExchanger, error)

	// APIServerFactory creates the HTTP API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler, logger *slog.Logger) Server

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) Server

	// ControlServerFactory creates the gRPC health server.
	// Default: control.NewGRPCServer
	ControlServerFactory func(component string, ready observability.ReadinessChecker) (ControlServer, error)

	// ControlTLSLoader loads or generates the control server mTLS config.
	// Default: tls.EnsureServerConfig
	ControlTLSLoader func(certsDir, instance string) (*cryptotls.Config, error)

	// LogWriter receives log output. Default: os.Stderr
	LogWriter io.Writer
}

// Server wraps the lifecycle shared by httpapi.Server and observability.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ControlServer interface wraps the methods used from control.GRPCServer.
type ControlServer interface {
	Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = store.Connect
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = openMigrator
	}
	if out.MailerFactory == nil {
		out.MailerFactory = newMailer
	}
	if out.ExchangerFactory == nil {
		out.ExchangerFactory = func(google, github social.Config) (map[auth.Provider]auth.ProfileExchanger, error) {
			return social.NewExchangers(google, github)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) Server {
			return httpapi.NewServer(addr, handler, logger)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) Server {
			return observability.NewServer(addr, ready)
		}
	}
	if out.ControlServerFactory == nil {
		out.ControlServerFactory = func(component string, ready observability.ReadinessChecker) (ControlServer, error) {
			return control.NewGRPCServer(component, ready, control.DefaultProbeInterval)
		}
	}
	if out.ControlTLSLoader == nil {
		out.ControlTLSLoader = func(certsDir, instance string) (*cryptotls.Config, error) {
			return tls.EnsureServerConfig(certsDir, instance)
		}
	}
	return &out
}

func openMigrator(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newMailer builds the mailer selected by cfg.Driver.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (auth.Mailer, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.MailSMTP:
		m, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:            cfg.SMTP.Host,
			Port:            cfg.SMTP.Port,
			Username:        cfg.SMTP.Username,
			Password:        cfg.SMTP.Password,
			From:            cfg.SMTP.From,
			FromName:        cfg.SMTP.FromName,
			DisableStartTLS: cfg.SMTP.DisableStartTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, noop, nil
	case config.MailKafka:
		w, err := mail.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, err
		}
		m, err := mail.NewKafkaMailer(w)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		return mail.NewLogMailer(logger), noop, nil
	}
}

// socialConfig converts a provider section to social.Config.
func socialConfig(p config.ProviderConfig) social.Config {
	return social.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
	}
}

// shutdownTimeout bounds the graceful stop of every server.
const shutdownTimeout = 10 * time.Second
