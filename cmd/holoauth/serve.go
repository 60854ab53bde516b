// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memstore"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/httpapi"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/xdg"
	"github.com/holomush/holoauth/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential service",
		Long: `Start the HTTP API, the metrics and health endpoints, and the gRPC
health service. Expired sessions and reset tokens are purged periodically.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// repositories bundles the persistence layer selected by the storage driver.
type repositories struct {
	accounts auth.AccountRepository
	tokens   auth.RefreshTokenRepository
	codes    auth.VerificationCodeRepository
	links    auth.SocialLinkRepository
	resets   auth.PasswordResetRepository
	ready    observability.ReadinessChecker
	close    func()
}

// openStorage connects the configured storage backend.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger, deps *ServeDeps) (*repositories, error) {
	if cfg.Driver != config.StoragePostgres {
		mem := memstore.New()
		return &repositories{
			accounts: mem.Accounts,
			tokens:   mem.RefreshTokens,
			codes:    mem.VerificationCodes,
			links:    mem.SocialLinks,
			resets:   mem.PasswordResets,
			ready:    func(context.Context) bool { return true },
			close:    func() {},
		}, nil
	}

	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL, deps); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	opts := store.DefaultConnectOptions()
	opts.MaxConns = cfg.MaxConns
	opts.Logger = logger
	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	return &repositories{
		accounts: postgres.NewAccountRepository(pool),
		tokens:   postgres.NewRefreshTokenRepository(pool),
		codes:    postgres.NewVerificationCodeRepository(pool),
		links:    postgres.NewSocialLinkRepository(pool),
		resets:   postgres.NewPasswordResetRepository(pool),
		ready:    func(ctx context.Context) bool { return store.Ping(ctx, pool) },
		close:    pool.Close,
	}, nil
}

func migrateUp(databaseURL string, deps *ServeDeps) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()
	return m.Up()
}

// buildService assembles the CredentialService over repos.
func buildService(cfg config.Config, repos *repositories, mailer auth.Mailer, logger *slog.Logger, deps *ServeDeps) (*auth.CredentialService, error) {
	sessions, err := auth.NewSessionStore(repos.tokens)
	if err != nil {
		return nil, err
	}
	verification, err := auth.NewVerificationChallenge(repos.codes, []byte(cfg.Auth.CodeSecret))
	if err != nil {
		return nil, err
	}
	exchangers, err := deps.ExchangerFactory(socialConfig(cfg.OAuth.Google), socialConfig(cfg.OAuth.GitHub))
	if err != nil {
		return nil, err
	}
	resolver, err := auth.NewSocialIdentityResolver(exchangers, repos.accounts, repos.links)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenCodec([]byte(cfg.Auth.AccessSecret), []byte(cfg.Auth.RefreshSecret),
		auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return nil, err
	}

	return auth.NewCredentialService(auth.Dependencies{
		Accounts:     repos.accounts,
		Resets:       repos.resets,
		Sessions:     sessions,
		Verification: verification,
		Social:       resolver,
		Tokens:       tokens,
		Hasher:       auth.NewArgon2idHasher(),
		Mailer:       mailer,
		Logger:       logger,
	})
}

// runServeWithDeps runs the service until ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup("holoauth", version, cfg.Log.Format, level, deps.LogWriter)
	slog.SetDefault(logger)

	logger.Info("starting holoauth",
		"http_addr", cfg.HTTP.Addr,
		"storage", cfg.Storage.Driver,
		"mail", cfg.Mail.Driver)

	repos, err := openStorage(ctx, cfg.Storage, logger, deps)
	if err != nil {
		return err
	}
	defer repos.close()

	mailer, closeMailer, err := deps.MailerFactory(cfg.Mail, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeMailer(); closeErr != nil {
			errutil.LogWarn(context.Background(), logger, "error closing mailer", closeErr)
		}
	}()

	service, err := buildService(cfg, repos, mailer, logger, deps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var started []stopper
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		for i := len(started) - 1; i >= 0; i-- {
			if stopErr := started[i].server.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("error stopping server", "server", started[i].name, "error", stopErr)
			}
		}
		logger.Info("shutdown complete")
	}()

	if cfg.HTTP.ControlAddr != "" {
		controlServer, err := deps.ControlServerFactory("holoauth", repos.ready)
		if err != nil {
			return err
		}
		var tlsConfig *cryptotls.Config
		if cfg.HTTP.ControlTLS {
			certsDir := cfg.HTTP.ControlCertsDir
			if certsDir == "" {
				certsDir = xdg.CertsDir()
			}
			tlsConfig, err = deps.ControlTLSLoader(certsDir, "holoauth")
			if err != nil {
				return err
			}
			logger.Info("control TLS ready", "certs_dir", certsDir)
		}
		errCh, err := controlServer.Start(cfg.HTTP.ControlAddr, tlsConfig)
		if err != nil {
			return err
		}
		started = append(started, stopper{"control-grpc", controlServer})
		go monitorServerErrors(ctx, cancel, errCh, "control-grpc")
		logger.Info("control gRPC server started", "addr", controlServer.Addr())
	}

	if cfg.HTTP.MetricsAddr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.HTTP.MetricsAddr, repos.ready)
		errCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		started = append(started, stopper{"observability", obsServer})
		go monitorServerErrors(ctx, cancel, errCh, "observability")
	}

	router := httpapi.NewRouter(service, httpapi.Options{
		SecureCookies: cfg.HTTP.SecureCookies,
		FrontendURL:   cfg.HTTP.FrontendURL,
		Logger:        logger,
	})
	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, router, logger)
	errCh, err := apiServer.Start()
	if err != nil {
		return err
	}
	started = append(started, stopper{"http", apiServer})
	go monitorServerErrors(ctx, cancel, errCh, "http")

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		runJanitor(ctx, service, cfg.Storage.JanitorInterval, logger)
	}()
	defer func() {
		cancel()
		<-janitorDone
	}()

	cmd.Println("holoauth listening on " + apiServer.Addr())
	<-ctx.Done()
	logger.Info("shutting down...")
	return nil
}

type stopper struct {
	name   string
	server interface {
		Stop(ctx context.Context) error
	}
}

// purger is the part of CredentialService the janitor drives.
type purger interface {
	PurgeExpired(ctx context.Context) (sessions, resets int64, err error)
}

// runJanitor purges expired sessions and reset tokens every interval until
// ctx is done. A non-positive interval disables it.
func runJanitor(ctx context.Context, p purger, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, resets, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errutil.LogWarn(ctx, logger, "purge expired credentials failed", err)
				}
				continue
			}
			logger.Debug("purged expired credentials", "sessions", sessions, "resets", resets)
		}
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel is closed or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
