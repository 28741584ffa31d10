package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every structured environment variable, e.g.
// LOGPIPE_CONSUMER__RETRY_INTERVAL=5s sets consumer.retry_interval.
const EnvPrefix = "LOGPIPE_"

// DefaultChannel is the pub/sub channel shared by the generator and the consumer.
const DefaultChannel = "log-channel"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database"`
	Broker        BrokerConfig         `koanf:"broker" validate:"required"`
	Generator     GeneratorConfig      `koanf:"generator"`
	Consumer      ConsumerConfig       `koanf:"consumer"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env      string `koanf:"env" validate:"required,oneof=development staging production"`
	LogLevel string `koanf:"log_level" validate:"required,oneof=trace debug info warn error"`
}

type ServerConfig struct {
	Port         string `koanf:"port" validate:"required"`
	ReadTimeout  int    `koanf:"read_timeout" validate:"required,min=1"`
	WriteTimeout int    `koanf:"write_timeout" validate:"required,min=1"`
	IdleTimeout  int    `koanf:"idle_timeout" validate:"required,min=1"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url" validate:"required"`
	MaxConns int32  `koanf:"max_conns" validate:"min=0"`
	// LogLevel is the pgx tracelog level (trace, debug, info, warn, error, none).
	LogLevel string `koanf:"log_level" validate:"oneof=trace debug info warn error none"`

	// ConnectTimeout bounds a single dial; keep it at or below consumer.retry_interval.
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"gte=0"`
}

type BrokerConfig struct {
	URL     string `koanf:"url" validate:"required,url"`
	Channel string `koanf:"channel" validate:"required"`
}

type GeneratorConfig struct {
	MinInterval time.Duration `koanf:"min_interval" validate:"gt=0"`
	MaxInterval time.Duration `koanf:"max_interval" validate:"gtefield=MinInterval"`
	Seed        uint64        `koanf:"seed"`
	MetricsAddr string        `koanf:"metrics_addr"`
}

// ProvisionMode selects how the consumer prepares the raw_logs table on startup.
type ProvisionMode string

const (
	ProvisionEnsure  ProvisionMode = "ensure"
	ProvisionMigrate ProvisionMode = "migrate"
	ProvisionNone    ProvisionMode = "none"
)

type ConsumerConfig struct {
	RetryInterval time.Duration `koanf:"retry_interval" validate:"gt=0"`
	// MaxConnectAttempts caps store and broker connection attempts. 0 retries forever.
	MaxConnectAttempts uint64        `koanf:"max_connect_attempts"`
	ProvisionMode      ProvisionMode `koanf:"provision_mode" validate:"oneof=ensure migrate none"`
}

// Section names one validated part of Config. Each binary only validates what it uses.
type Section int

const (
	ForGenerator Section = iota
	ForConsumer
	ForProvision
)

var defaults = map[string]any{
	"primary.env":                   "development",
	"primary.log_level":             "info",
	"server.port":                   "8000",
	"server.read_timeout":           10,
	"server.write_timeout":          10,
	"server.idle_timeout":           60,
	"database.max_conns":            4,
	"database.log_level":            "warn",
	"database.connect_timeout":      "5s",
	"broker.url":                    "redis://localhost:6379",
	"broker.channel":                DefaultChannel,
	"generator.min_interval":        "500ms",
	"generator.max_interval":        "2s",
	"generator.seed":                0,
	"consumer.retry_interval":       "5s",
	"consumer.max_connect_attempts": 0,
	"consumer.provision_mode":       string(ProvisionEnsure),
}

// legacyEnv maps the bare variable names used by existing deployments.
var legacyEnv = map[string]string{
	"DATABASE_URL": "database.url",
	"REDIS_URL":    "broker.url",
}

// Load reads configuration from defaults, an optional .env file and environment
// variables, then validates the sections needed by the calling binary.
func Load(section Section) (mainConfig *Config, err error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err = k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	err = k.Load(env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load legacy env variables: %w", err)
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env variables: %w", err)
	}

	mainConfig = &Config{}
	if err = k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// set default observability config if not provided
	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	mainConfig.Observability.Environment = mainConfig.Primary.Env
	if mainConfig.Observability.ServiceName == "" {
		mainConfig.Observability.ServiceName = DefaultServiceName(section)
	}

	if err = mainConfig.Validate(section); err != nil {
		return nil, err
	}
	return mainConfig, nil
}

// Validate checks the shared sections plus the ones owned by section.
func (c *Config) Validate(section Section) error {
	validate := validator.New()

	parts := []any{&c.Primary, &c.Broker}
	switch section {
	case ForGenerator:
		parts = append(parts, &c.Generator)
	case ForConsumer:
		parts = append(parts, &c.Server, &c.Database, &c.Consumer)
	case ForProvision:
		parts = append(parts, &c.Database)
	}
	for _, p := range parts {
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	if strings.Contains(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}
