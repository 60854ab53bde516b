// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable holoauth reads, except DATABASE_URL.
const EnvPrefix = "HOLOAUTH_"

// FlagKeys maps command-line flag names to config keys. Flags not listed are
// not configuration.
var FlagKeys = map[string]string{
	"http-addr":         "http.addr",
	"metrics-addr":      "http.metrics_addr",
	"control-addr":      "http.control_addr",
	"control-tls":       "http.control_tls",
	"control-certs-dir": "http.control_certs_dir",
	"log-format":        "log.format",
	"log-level":         "log.level",
	"storage":           "storage.driver",
	"database-url":      "storage.database_url",
	"auto-migrate":      "storage.auto_migrate",
	"mail":              "mail.driver",
}

// Options tells Load where to look.
type Options struct {
	// File is the YAML config path. Empty skips the file.
	File string
	// DotEnv is the .env path. Empty means ".env"; a missing file is ignored.
	DotEnv string
	// Flags are overlaid for every name in FlagKeys.
	Flags *pflag.FlagSet
}

// Load builds the effective configuration: defaults, then the YAML file,
// then flags, then the environment (after .env). It does not validate.
func Load(opts Options) (Config, error) {
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, oops.Code("CONFIG_DOTENV_FAILED").With("path", dotenv).Wrap(err)
	}

	k := koanf.New(".")
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("path", opts.File).Wrap(err)
		}
	}
	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}
	if _, set := os.LookupEnv(EnvPrefix + "STORAGE_DATABASE_URL"); !set {
		if url := os.Getenv("DATABASE_URL"); url != "" {
			cfg.Storage.DatabaseURL = url
		}
	}
	trimList(&cfg.Mail.Kafka.Brokers)
	trimList(&cfg.OAuth.Google.Scopes)
	trimList(&cfg.OAuth.GitHub.Scopes)
	return cfg, nil
}

func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := FlagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}

// trimList removes blank entries left by comma-separated sources.
func trimList(values *[]string) {
	out := (*values)[:0]
	for _, v := range *values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = nil
	}
	*values = out
}

// RegisterFlags defines the configuration flags on fs with defaults from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "HTTP API listen address")
	fs.String("metrics-addr", d.HTTP.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("control-addr", d.HTTP.ControlAddr, "gRPC health listen address (empty = disabled)")
	fs.Bool("control-tls", d.HTTP.ControlTLS, "require mutual TLS on the gRPC health listener")
	fs.String("control-certs-dir", "", "control TLS certificate directory (default: $XDG_DATA_HOME/holoauth/certs)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("storage", d.Storage.Driver, "storage driver (memory or postgres)")
	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.Bool("auto-migrate", d.Storage.AutoMigrate, "apply pending migrations on startup")
	fs.String("mail", d.Mail.Driver, "mail driver (log, smtp or kafka)")
}
