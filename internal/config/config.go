// Package config loads the extension-oauth process configuration from an
// optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Deployment environments selected by APP_ENV.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Code store backends selected by CODE_STORE.
const (
	CodeStoreMemory = "memory"
	CodeStoreValkey = "valkey"
	CodeStoreRedis  = "redis"
)

// Config is the complete process configuration. Environment variables
// override values read from the YAML file.
type Config struct {
	Env string `yaml:"env" env:"APP_ENV" env-default:"local"`

	HTTP      HTTPConfig      `yaml:"http"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Client    ClientConfig    `yaml:"client"`
	CodeStore CodeStoreConfig `yaml:"code_store"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	Redis     RedisConfig     `yaml:"redis"`
	Security  SecurityConfig  `yaml:"security"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	PhoneDataFile string `yaml:"phone_data_file" env:"PHONE_DATA_FILE"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type OAuthConfig struct {
	Issuer         string        `yaml:"issuer" env:"OAUTH_ISSUER" env-default:"https://droneextensionapp.netlify.app"`
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AuthCodeTTL    time.Duration `yaml:"auth_code_ttl" env:"AUTH_CODE_TTL" env-default:"10m"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"1h"`
	DefaultScope   string        `yaml:"default_scope" env:"DEFAULT_SCOPE" env-default:"signature"`
	AllowPKCEPlain bool          `yaml:"pkce_allow_plain" env:"PKCE_ALLOW_PLAIN" env-default:"true"`
}

// ClientConfig describes the single statically registered client.
type ClientConfig struct {
	ID           string   `yaml:"id" env:"DEFAULT_CLIENT_ID" env-required:"true"`
	Secret       string   `yaml:"secret" env:"DEFAULT_CLIENT_SECRET" env-required:"true"`
	Name         string   `yaml:"name" env:"DEFAULT_CLIENT_NAME" env-default:"Sample Extension App"`
	RedirectURIs []string `yaml:"redirect_uris" env:"DEFAULT_CLIENT_REDIRECT_URIS" env-separator:"," env-default:"https://demo.services.docusign.net/act-gateway/v1.0/oauth/callback"`
	// SecretCost is the bcrypt cost used to hash Secret at startup.
	SecretCost int `yaml:"secret_bcrypt_cost" env:"CLIENT_SECRET_BCRYPT_COST" env-default:"10"`
}

type CodeStoreConfig struct {
	Backend string `yaml:"backend" env:"CODE_STORE" env-default:"memory"`
	// EncryptionKey is a base64 AES-256 key. Empty stores payloads in clear.
	EncryptionKey string `yaml:"encryption_key" env:"CODE_STORE_ENCRYPTION_KEY"`
	KeyPrefix     string `yaml:"key_prefix" env:"CODE_STORE_KEY_PREFIX" env-default:"extension-oauth:"`
}

type ValkeyConfig struct {
	Addr     string `yaml:"addr" env:"VALKEY_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"VALKEY_PASSWORD"`
	DB       int    `yaml:"db" env:"VALKEY_DB"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type SecurityConfig struct {
	// RateLimitRPS of 0 disables per-IP rate limiting.
	RateLimitRPS      float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"10"`
	RateLimitBurst    int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"20"`
	TrustProxy        bool    `yaml:"trust_proxy" env:"TRUST_PROXY"`
	TrustedProxyCount int     `yaml:"trusted_proxy_count" env:"TRUSTED_PROXY_COUNT"`
	CORSAllowedOrigin string  `yaml:"cors_allowed_origin" env:"CORS_ALLOWED_ORIGIN" env-default:"*"`
	AuditLogging      bool    `yaml:"audit_logging" env:"AUDIT_LOGGING" env-default:"true"`
}

type TelemetryConfig struct {
	Enabled         bool   `yaml:"enabled" env:"OTEL_ENABLED"`
	ServiceName     string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"extension-oauth"`
	MetricsExporter string `yaml:"metrics_exporter" env:"OTEL_METRICS_EXPORTER" env-default:"prometheus"`
	LogClientIPs    bool   `yaml:"log_client_ips" env:"LOG_CLIENT_IPS"`
}

// Load reads the configuration. path names a YAML file; when empty,
// CONFIG_PATH is consulted, and without either only the environment is read.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load that panics on error. The process cannot start without
// its signing key and default client.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks values that cleanenv cannot express as tags.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("APP_ENV must be one of %s, %s, %s; got %q", EnvLocal, EnvDev, EnvProd, c.Env)
	}

	switch c.CodeStore.Backend {
	case CodeStoreMemory, CodeStoreValkey, CodeStoreRedis:
	default:
		return fmt.Errorf("CODE_STORE must be one of %s, %s, %s; got %q",
			CodeStoreMemory, CodeStoreValkey, CodeStoreRedis, c.CodeStore.Backend)
	}

	if c.OAuth.AuthCodeTTL <= 0 {
		return fmt.Errorf("AUTH_CODE_TTL must be positive, got %s", c.OAuth.AuthCodeTTL)
	}
	if c.OAuth.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", c.OAuth.AccessTokenTTL)
	}
	if c.Security.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %v", c.Security.RateLimitRPS)
	}
	if c.Security.TrustedProxyCount < 0 {
		return fmt.Errorf("TRUSTED_PROXY_COUNT must not be negative, got %d", c.Security.TrustedProxyCount)
	}

	return nil
}
