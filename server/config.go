package server

import (
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/droneregistry/extension-oauth/token"
)

// DefaultAuthorizationCodeTTL is how long an issued code stays redeemable.
const DefaultAuthorizationCodeTTL = 10 * time.Minute

// Config holds authorization server configuration.
type Config struct {
	// Issuer is the server's issuer identifier, used for logging and the
	// HSTS decision in the HTTP layer. Default: token.DefaultIssuer.
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid.
	// Default: 10 minutes.
	AuthorizationCodeTTL time.Duration

	// DefaultScope is granted when a request names none. Default: "signature".
	DefaultScope string

	// AllowPKCEPlain accepts code_challenge_method=plain. DefaultConfig
	// enables it because the partner platform may send plain challenges.
	AllowPKCEPlain bool

	// ClientSecretCost is the bcrypt cost of the dummy hash compared against
	// for unknown clients. It should match the cost the registry was hashed
	// with so both paths take the same time. Default: bcrypt.DefaultCost.
	ClientSecretCost int

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the configuration used when New is given nil.
func DefaultConfig() *Config {
	return &Config{
		Issuer:               token.DefaultIssuer,
		AuthorizationCodeTTL: DefaultAuthorizationCodeTTL,
		DefaultScope:         token.DefaultScope,
		AllowPKCEPlain:       true,
		ClientSecretCost:     bcrypt.DefaultCost,
		Clock:                time.Now,
	}
}

// applyDefaults fills zero values. Booleans are taken as given.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	cfg := *config
	if cfg.Issuer == "" {
		cfg.Issuer = token.DefaultIssuer
	}
	if cfg.AuthorizationCodeTTL <= 0 {
		cfg.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = token.DefaultScope
	}
	if cfg.ClientSecretCost == 0 {
		cfg.ClientSecretCost = bcrypt.DefaultCost
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logSecurityWarnings(&cfg, logger)
	return &cfg
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.AllowPKCEPlain {
		logger.Warn("Plain PKCE method is allowed",
			"risk", "Weak code challenge protection",
			"recommendation", "Set PKCE_ALLOW_PLAIN=false once all clients send S256")
	}
	if config.ClientSecretCost < bcrypt.DefaultCost {
		logger.Warn("Client secret bcrypt cost is below the default",
			"cost", config.ClientSecretCost,
			"default", bcrypt.DefaultCost)
	}
}
