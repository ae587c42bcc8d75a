package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"CONFIG_PATH", "APP_ENV",
	"HTTP_ADDR", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_IDLE_TIMEOUT", "HTTP_SHUTDOWN_TIMEOUT",
	"OAUTH_ISSUER", "JWT_SECRET", "AUTH_CODE_TTL", "ACCESS_TOKEN_TTL", "DEFAULT_SCOPE", "PKCE_ALLOW_PLAIN",
	"DEFAULT_CLIENT_ID", "DEFAULT_CLIENT_SECRET", "DEFAULT_CLIENT_NAME", "DEFAULT_CLIENT_REDIRECT_URIS",
	"CLIENT_SECRET_BCRYPT_COST",
	"CODE_STORE", "CODE_STORE_ENCRYPTION_KEY", "CODE_STORE_KEY_PREFIX",
	"VALKEY_ADDR", "VALKEY_PASSWORD", "VALKEY_DB",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUST_PROXY", "TRUSTED_PROXY_COUNT",
	"CORS_ALLOWED_ORIGIN", "AUDIT_LOGGING", "PHONE_DATA_FILE",
	"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_METRICS_EXPORTER", "LOG_CLIENT_IPS",
}

// clearEnv unsets every key Load reads. An empty value still counts as set
// for cleanenv, so keys are removed rather than blanked.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("DEFAULT_CLIENT_ID", "client")
	t.Setenv("DEFAULT_CLIENT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ShutdownTimeout)

	assert.Equal(t, "https://droneextensionapp.netlify.app", cfg.OAuth.Issuer)
	assert.Equal(t, "jwt-secret", cfg.OAuth.JWTSecret)
	assert.Equal(t, 10*time.Minute, cfg.OAuth.AuthCodeTTL)
	assert.Equal(t, time.Hour, cfg.OAuth.AccessTokenTTL)
	assert.Equal(t, "signature", cfg.OAuth.DefaultScope)
	assert.True(t, cfg.OAuth.AllowPKCEPlain)

	assert.Equal(t, "client", cfg.Client.ID)
	assert.Equal(t, "secret", cfg.Client.Secret)
	assert.Equal(t, "Sample Extension App", cfg.Client.Name)
	assert.Equal(t, []string{"https://demo.services.docusign.net/act-gateway/v1.0/oauth/callback"}, cfg.Client.RedirectURIs)
	assert.Equal(t, 10, cfg.Client.SecretCost)

	assert.Equal(t, CodeStoreMemory, cfg.CodeStore.Backend)
	assert.Equal(t, "extension-oauth:", cfg.CodeStore.KeyPrefix)
	assert.Empty(t, cfg.CodeStore.EncryptionKey)

	assert.Equal(t, 10.0, cfg.Security.RateLimitRPS)
	assert.Equal(t, 20, cfg.Security.RateLimitBurst)
	assert.Equal(t, "*", cfg.Security.CORSAllowedOrigin)
	assert.True(t, cfg.Security.AuditLogging)
	assert.False(t, cfg.Security.TrustProxy)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricsExporter)
	assert.Empty(t, cfg.PhoneDataFile)
}

func TestLoad_RequiredKeys(t *testing.T) {
	for _, missing := range []string{"JWT_SECRET", "DEFAULT_CLIENT_ID", "DEFAULT_CLIENT_SECRET"} {
		t.Run(missing, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			require.NoError(t, os.Unsetenv(missing))

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("AUTH_CODE_TTL", "5m")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("PKCE_ALLOW_PLAIN", "false")
	t.Setenv("DEFAULT_CLIENT_REDIRECT_URIS", "https://a.example.com/cb,https://b.example.com/cb")
	t.Setenv("CODE_STORE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("TRUSTED_PROXY_COUNT", "1")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, 5*time.Minute, cfg.OAuth.AuthCodeTTL)
	assert.Equal(t, 30*time.Minute, cfg.OAuth.AccessTokenTTL)
	assert.False(t, cfg.OAuth.AllowPKCEPlain)
	assert.Equal(t, []string{"https://a.example.com/cb", "https://b.example.com/cb"}, cfg.Client.RedirectURIs)
	assert.Equal(t, CodeStoreRedis, cfg.CodeStore.Backend)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 2.5, cfg.Security.RateLimitRPS)
	assert.True(t, cfg.Security.TrustProxy)
	assert.Equal(t, 1, cfg.Security.TrustedProxyCount)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown env", key: "APP_ENV", value: "staging"},
		{name: "unknown store", key: "CODE_STORE", value: "postgres"},
		{name: "zero code ttl", key: "AUTH_CODE_TTL", value: "0s"},
		{name: "negative token ttl", key: "ACCESS_TOKEN_TTL", value: "-1h"},
		{name: "negative rate", key: "RATE_LIMIT_RPS", value: "-1"},
		{name: "unparsable duration", key: "AUTH_CODE_TTL", value: "ten minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `env: dev
http:
  addr: ":9090"
oauth:
  jwt_secret: file-secret
  auth_code_ttl: 2m
client:
  id: file-client
  secret: file-client-secret
  redirect_uris:
    - https://partner.example.com/callback
code_store:
  backend: valkey
valkey:
  addr: valkey:6379
  db: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, ":7070", cfg.HTTP.Addr, "environment overrides the file")
	assert.Equal(t, "file-secret", cfg.OAuth.JWTSecret)
	assert.Equal(t, 2*time.Minute, cfg.OAuth.AuthCodeTTL)
	assert.Equal(t, time.Hour, cfg.OAuth.AccessTokenTTL)
	assert.Equal(t, "file-client", cfg.Client.ID)
	assert.Equal(t, []string{"https://partner.example.com/callback"}, cfg.Client.RedirectURIs)
	assert.Equal(t, CodeStoreValkey, cfg.CodeStore.Backend)
	assert.Equal(t, "valkey:6379", cfg.Valkey.Addr)
	assert.Equal(t, 3, cfg.Valkey.DB)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oauth:\n  default_scope: impersonation\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "impersonation", cfg.OAuth.DefaultScope)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestMustLoad_PanicsWithoutSecrets(t *testing.T) {
	clearEnv(t)

	assert.Panics(t, func() { MustLoad("") })
}
