// Package config loads the campaign settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mdmestre/enroller/internal/contacts"
	"github.com/mdmestre/enroller/internal/engine"
	"github.com/mdmestre/enroller/internal/pacing"
)

// Prefix is prepended to every variable name.
const Prefix = "ENROLL_"

// Ledger backends.
const (
	LedgerJSON     = "json"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMongo    = "mongo"
)

// Config is the full campaign configuration.
type Config struct {
	GroupID string `env:"GROUP_ID"`

	ContactsPath string `env:"CONTACTS_PATH" envDefault:"./contacts.xlsx"`
	OptOutPath   string `env:"OPTOUT_PATH"`
	IDSuffix     string `env:"ID_SUFFIX"`
	MinDigits    int    `env:"MIN_DIGITS"    envDefault:"8"`

	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"json"`
	LedgerPath    string `env:"LEDGER_PATH"    envDefault:"./progress.json"`
	// LedgerDSN locates the postgres, redis or mongo server.
	LedgerDSN  string `env:"LEDGER_DSN"`
	LedgerName string `env:"LEDGER_NAME" envDefault:"default"`

	AddQuota  int `env:"ADD_QUOTA"  envDefault:"8"`
	LinkQuota int `env:"LINK_QUOTA" envDefault:"20"`

	AddDelayMin  time.Duration `env:"ADD_DELAY_MIN"  envDefault:"120s"`
	AddDelayMax  time.Duration `env:"ADD_DELAY_MAX"  envDefault:"180s"`
	LinkDelayMin time.Duration `env:"LINK_DELAY_MIN" envDefault:"60s"`
	LinkDelayMax time.Duration `env:"LINK_DELAY_MAX" envDefault:"120s"`
	Cooldown     time.Duration `env:"COOLDOWN"       envDefault:"35m"`

	StartDelay     time.Duration `env:"START_DELAY"     envDefault:"10s"`
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"10s"`

	MessageTemplate string `env:"MESSAGE_TEMPLATE"`

	GatewayURL       string        `env:"GATEWAY_URL"`
	GatewayToken     string        `env:"GATEWAY_TOKEN"`
	GatewayHeartbeat time.Duration `env:"GATEWAY_HEARTBEAT" envDefault:"30s"`

	MetricsAddr string `env:"METRICS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadFromEnv reads the process environment.
func LoadFromEnv() (Config, error) {
	return Load(nil)
}

// Load reads configuration from environ, or from the process environment
// when environ is nil. Keys in environ include the prefix.
func Load(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings needed by every command. Campaign policy is
// checked again by engine.Config.Validate.
func (c Config) Validate() error {
	var errs []error
	if c.MinDigits < 1 {
		errs = append(errs, fmt.Errorf("%sMIN_DIGITS must be positive", Prefix))
	}
	switch c.LedgerBackend {
	case LedgerJSON, LedgerSQLite:
		if c.LedgerPath == "" {
			errs = append(errs, fmt.Errorf("%sLEDGER_PATH is required", Prefix))
		}
	case LedgerPostgres, LedgerRedis, LedgerMongo:
		if c.LedgerDSN == "" {
			errs = append(errs, fmt.Errorf("%sLEDGER_DSN is required for the %s ledger", Prefix, c.LedgerBackend))
		}
	default:
		errs = append(errs, fmt.Errorf("%sLEDGER_BACKEND must be one of json, sqlite, postgres, redis, mongo; got %q", Prefix, c.LedgerBackend))
	}
	if c.ContactsPath == "" {
		errs = append(errs, fmt.Errorf("%sCONTACTS_PATH is required", Prefix))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Engine returns the orchestrator policy. The message template is compiled
// here so a broken template fails at startup.
func (c Config) Engine() (engine.Config, error) {
	msg, err := engine.TemplateMessage(c.MessageTemplate)
	if err != nil {
		return engine.Config{}, err
	}
	ec := engine.Config{
		GroupID:   c.GroupID,
		AddQuota:  c.AddQuota,
		LinkQuota: c.LinkQuota,
		AddDelay:  pacing.Range{Min: c.AddDelayMin, Max: c.AddDelayMax},
		LinkDelay: pacing.Range{Min: c.LinkDelayMin, Max: c.LinkDelayMax},
		Cooldown:  c.Cooldown,
		Message:   msg,
	}
	if err := ec.Validate(); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

// Normalizer returns the contact normalizer.
func (c Config) Normalizer() contacts.Normalizer {
	return contacts.Normalizer{MinDigits: c.MinDigits, Suffix: c.IDSuffix}
}

// Logger builds the process logger.
func (c Config) Logger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err)
	}
	return level, nil
}
