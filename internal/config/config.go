// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
	Alerts   AlertsConfig
	Notify   NotifyConfig
	Captcha  CaptchaConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// SMTPConfig configures the outbound mailer. An empty Host selects the
// log-only mailer, which is the development default.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	TLS      bool
}

// AuthConfig holds the magic-link parameters.
type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	TokenExpiryMinutes int  // lifetime of a magic-link token
	RateLimit          int  // tokens per email per trailing hour
	RequireApproval    bool // submissions start as pending instead of published
	ApprovedSenders    []string
}

// AlertsConfig holds visibility and sweep parameters.
type AlertsConfig struct { //nolint:govet // fieldalignment not critical for config structs
	DateRangeDays       int // default /alerts window: today .. today+N
	PublishBatchSize    int
	ExpiryBatchSize     int
	PublishSweepMinutes int
	CleanupSweepMinutes int
}

type NotifyConfig struct {
	BatchSize         int
	BatchDelaySeconds int
}

type CaptchaConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Enabled   bool
	SiteKey   string
	SecretKey string
	MinScore  float64
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Auth: AuthConfig{
			TokenExpiryMinutes: int(cmd.Int("token-expiry")),
			RateLimit:          int(cmd.Int("rate-limit")),
			RequireApproval:    cmd.Bool("require-approval"),
			ApprovedSenders:    cmd.StringSlice("approved-senders"),
		},
		Alerts: AlertsConfig{
			DateRangeDays:       int(cmd.Int("date-range")),
			PublishBatchSize:    int(cmd.Int("publish-batch-size")),
			ExpiryBatchSize:     int(cmd.Int("expiry-batch-size")),
			PublishSweepMinutes: int(cmd.Int("publish-sweep-minutes")),
			CleanupSweepMinutes: int(cmd.Int("cleanup-sweep-minutes")),
		},
		Notify: NotifyConfig{
			BatchSize:         int(cmd.Int("notify-batch-size")),
			BatchDelaySeconds: int(cmd.Int("notify-batch-delay")),
		},
		Captcha: CaptchaConfig{
			Enabled:   cmd.Bool("captcha-enabled"),
			SiteKey:   cmd.String("captcha-site-key"),
			SecretKey: cmd.String("captcha-secret-key"),
			MinScore:  cmd.Float("captcha-min-score"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	if port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL used in emailed links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/alerts.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (empty logs mail instead of sending)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "alerts@localhost",
			Usage:   "From address for outbound mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "CityAlerts",
			Usage:   "From name for outbound mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.IntFlag{
			Name:    "token-expiry",
			Value:   60,
			Usage:   "Magic-link token lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_EXPIRY"), toml.TOML("auth.token_expiry", configFile)),
		},
		&cli.IntFlag{
			Name:    "rate-limit",
			Value:   3,
			Usage:   "Magic-link requests per email per hour",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT"), toml.TOML("auth.rate_limit", configFile)),
		},
		&cli.BoolFlag{
			Name:    "require-approval",
			Usage:   "Hold submitted alerts as pending until reviewed",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REQUIRE_APPROVAL"), toml.TOML("auth.require_approval", configFile)),
		},
		&cli.StringSliceFlag{
			Name:    "approved-senders",
			Usage:   "Email addresses seeded into the approved-sender registry",
			Sources: cli.NewValueSourceChain(cli.EnvVar("APPROVED_SENDERS"), toml.TOML("auth.approved_senders", configFile)),
		},
		&cli.IntFlag{
			Name:    "date-range",
			Value:   7,
			Usage:   "Default alert listing window in days",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATE_RANGE"), toml.TOML("alerts.date_range", configFile)),
		},
		&cli.IntFlag{
			Name:    "publish-batch-size",
			Value:   50,
			Usage:   "Alerts published per sweep run",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PUBLISH_BATCH_SIZE"), toml.TOML("alerts.publish_batch_size", configFile)),
		},
		&cli.IntFlag{
			Name:    "expiry-batch-size",
			Value:   100,
			Usage:   "Alerts archived per expiry sweep run",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EXPIRY_BATCH_SIZE"), toml.TOML("alerts.expiry_batch_size", configFile)),
		},
		&cli.IntFlag{
			Name:    "publish-sweep-minutes",
			Value:   5,
			Usage:   "Interval between publish sweeps",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PUBLISH_SWEEP_MINUTES"), toml.TOML("alerts.publish_sweep_minutes", configFile)),
		},
		&cli.IntFlag{
			Name:    "cleanup-sweep-minutes",
			Value:   60,
			Usage:   "Interval between expiry sweeps and token cleanup",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CLEANUP_SWEEP_MINUTES"), toml.TOML("alerts.cleanup_sweep_minutes", configFile)),
		},
		&cli.IntFlag{
			Name:    "notify-batch-size",
			Value:   50,
			Usage:   "Recipients per notification batch",
			Sources: cli.NewValueSourceChain(cli.EnvVar("NOTIFY_BATCH_SIZE"), toml.TOML("notify.batch_size", configFile)),
		},
		&cli.IntFlag{
			Name:    "notify-batch-delay",
			Value:   30,
			Usage:   "Seconds between notification batches",
			Sources: cli.NewValueSourceChain(cli.EnvVar("NOTIFY_BATCH_DELAY"), toml.TOML("notify.batch_delay", configFile)),
		},
		&cli.BoolFlag{
			Name:    "captcha-enabled",
			Usage:   "Verify reCAPTCHA tokens on public forms",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CAPTCHA_ENABLED"), toml.TOML("captcha.enabled", configFile)),
		},
		&cli.StringFlag{
			Name:    "captcha-site-key",
			Usage:   "reCAPTCHA site key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CAPTCHA_SITE_KEY"), toml.TOML("captcha.site_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "captcha-secret-key",
			Usage:   "reCAPTCHA secret key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CAPTCHA_SECRET_KEY"), toml.TOML("captcha.secret_key", configFile)),
		},
		&cli.FloatFlag{
			Name:    "captcha-min-score",
			Value:   0.5,
			Usage:   "Minimum reCAPTCHA v3 score",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CAPTCHA_MIN_SCORE"), toml.TOML("captcha.min_score", configFile)),
		},
	}
}
