package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ListenAddr  string `env:"BLOOM_LISTEN_ADDR" envDefault:":8080"`
	StoreDriver string `env:"BLOOM_STORE" envDefault:"postgres"`
	DBURL       string `env:"BLOOM_DB_URL"`
	SQLitePath  string `env:"BLOOM_SQLITE_PATH" envDefault:"bloom.db"`
	TLSCertPath string `env:"BLOOM_TLS_CERT"`
	TLSKeyPath  string `env:"BLOOM_TLS_KEY"`
	AdminToken  string `env:"BLOOM_ADMIN_TOKEN"`

	InvitationTTL time.Duration `env:"BLOOM_INVITATION_TTL" envDefault:"72h"`
	// CatalogPath overrides the embedded step catalog when set.
	CatalogPath string `env:"BLOOM_STEP_CATALOG"`

	RedisAddr    string `env:"BLOOM_REDIS_ADDR"`
	RedisChannel string `env:"BLOOM_REDIS_CHANNEL" envDefault:"bloom.events"`

	LogMode      string `env:"BLOOM_LOG_MODE" envDefault:"production"`
	OTelEnabled  bool   `env:"BLOOM_OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"BLOOM_OTEL_ENDPOINT"`
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBURL == "" {
			return errors.New("db url is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.AdminToken == "" {
		return errors.New("admin token is required")
	}
	if c.InvitationTTL <= 0 {
		return errors.New("invitation ttl must be positive")
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return errors.New("both tls cert and key are required when enabling tls")
	}
	if c.OTelEnabled && c.OTelEndpoint == "" {
		return errors.New("otel endpoint is required when tracing is enabled")
	}
	return nil
}
