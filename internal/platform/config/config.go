package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	pkgstrings "obconsent/pkg/platform/strings"
)

// Config captures process configuration sourced from the environment.
type Config struct {
	Server      Server
	Database    Database
	Redis       RedisConfig
	Kafka       Kafka
	Persistence Persistence
	OAuth2      OAuth2
	Consent     Consent

	// StepsFile points at the YAML authorize-steps file. Empty means built-in defaults.
	StepsFile string `env:"AUTHORIZE_STEPS_FILE"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string `env:"OB_CONSENT_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"OB_CONSENT_METRICS_ADDR" envDefault:":9090"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// WriteTimeout must exceed the 30s per-request handler timeout.
	WriteTimeout time.Duration `env:"OB_CONSENT_WRITE_TIMEOUT" envDefault:"35s"`
}

// Database configures the Postgres consent store. An empty URL selects the in-memory store.
type Database struct {
	URL          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the session store. An empty URL selects the in-memory store.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures the compliance audit publisher. No brokers selects the in-memory audit store.
type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"consent-audit"`
}

// Persistence configures both sides of the consent persistence call: the
// confirm flow's outbound client and the Basic credentials the API accepts.
type Persistence struct {
	BaseURL           string        `env:"CONSENT_PERSIST_BASE_URL" envDefault:"http://localhost:8080/api/consent/authorize/persist"`
	Username          string        `env:"CONSENT_API_USERNAME" envDefault:"admin"`
	Password          string        `env:"CONSENT_API_PASSWORD"`
	PasswordHash      string        `env:"CONSENT_API_PASSWORD_HASH"`
	ClientTimeout     time.Duration `env:"CONSENT_HTTP_CLIENT_TIMEOUT" envDefault:"10s"`
	AuthorizeEndpoint string        `env:"OAUTH2_AUTHORIZE_ENDPOINT" envDefault:"http://localhost:8080/oauth2/authorize"`
	RetryPath         string        `env:"CONSENT_RETRY_PATH" envDefault:"/authenticationendpoint/retry.do"`
}

// OAuth2 configures scope handling on the token side.
type OAuth2 struct {
	ConsentIDClaimPrefix string   `env:"CONSENT_ID_CLAIM_PREFIX" envDefault:"OB_CONSENT_ID_"`
	RegulatedClientIDs   []string `env:"REGULATED_CLIENT_IDS" envSeparator:","`
}

// Consent configures consent lookups.
type Consent struct {
	CacheTTL time.Duration `env:"CONSENT_CACHE_TTL" envDefault:"1m"`
}

// Load reads a .env file when present, parses the environment, and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Persistence.BaseURL = strings.TrimRight(c.Persistence.BaseURL, "/")
	c.OAuth2.RegulatedClientIDs = pkgstrings.DedupeAndTrim(c.OAuth2.RegulatedClientIDs)
	c.Kafka.Brokers = pkgstrings.DedupeAndTrim(c.Kafka.Brokers)
}

func (c *Config) validate() error {
	if c.Persistence.Password == "" && c.Persistence.PasswordHash == "" {
		return fmt.Errorf("one of CONSENT_API_PASSWORD or CONSENT_API_PASSWORD_HASH is required")
	}
	if c.Persistence.Username == "" {
		return fmt.Errorf("CONSENT_API_USERNAME is required")
	}
	if _, err := url.ParseRequestURI(c.Persistence.BaseURL); err != nil {
		return fmt.Errorf("CONSENT_PERSIST_BASE_URL is invalid: %w", err)
	}
	if _, err := url.ParseRequestURI(c.Persistence.AuthorizeEndpoint); err != nil {
		return fmt.Errorf("OAUTH2_AUTHORIZE_ENDPOINT is invalid: %w", err)
	}
	if c.OAuth2.ConsentIDClaimPrefix == "" {
		return fmt.Errorf("CONSENT_ID_CLAIM_PREFIX is required")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
