// Command extension-oauth runs the authorization server of the drone
// registration extension app.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	oauth "github.com/droneregistry/extension-oauth"
	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/internal/config"
	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/server"
	"github.com/droneregistry/extension-oauth/storage"
	"github.com/droneregistry/extension-oauth/storage/memory"
	"github.com/droneregistry/extension-oauth/storage/redis"
	"github.com/droneregistry/extension-oauth/storage/valkey"
	"github.com/droneregistry/extension-oauth/token"
	"github.com/droneregistry/extension-oauth/verification"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: $CONFIG_PATH)")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := setupLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:         cfg.Telemetry.Enabled,
		ServiceName:     cfg.Telemetry.ServiceName,
		LogClientIPs:    cfg.Telemetry.LogClientIPs,
		MetricsExporter: cfg.Telemetry.MetricsExporter,
	})
	if err != nil {
		return fmt.Errorf("failed to set up instrumentation: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(ctx); err != nil {
			logger.Error("Instrumentation shutdown error", "error", err)
		}
	}()

	registry, err := newClientRegistry(cfg.Client)
	if err != nil {
		return err
	}

	codes, closeCodes, err := newCodeStore(cfg, inst, logger)
	if err != nil {
		return err
	}
	defer closeCodes()

	issuer, err := token.NewIssuer([]byte(cfg.OAuth.JWTSecret), cfg.OAuth.Issuer, token.WithTTL(cfg.OAuth.AccessTokenTTL))
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	srv, err := server.New(registry, codes, issuer, logger, &server.Config{
		Issuer:               cfg.OAuth.Issuer,
		AuthorizationCodeTTL: cfg.OAuth.AuthCodeTTL,
		DefaultScope:         cfg.OAuth.DefaultScope,
		AllowPKCEPlain:       cfg.OAuth.AllowPKCEPlain,
		ClientSecretCost:     cfg.Client.SecretCost,
	})
	if err != nil {
		return fmt.Errorf("failed to create authorization server: %w", err)
	}
	srv.SetAuditor(security.NewAuditor(logger, cfg.Security.AuditLogging, cfg.Telemetry.LogClientIPs))
	srv.SetInstrumentation(inst)

	dataset, err := loadDataset(cfg.PhoneDataFile)
	if err != nil {
		return err
	}
	logger.Info("Phone dataset loaded", "records", dataset.Len(), "source", datasetSource(cfg.PhoneDataFile))

	cors := security.DefaultCORSPolicy()
	cors.AllowedOrigin = cfg.Security.CORSAllowedOrigin

	handler := oauth.NewHandler(srv, verification.NewVerifier(dataset, logger), logger, oauth.Config{
		Issuer:            cfg.OAuth.Issuer,
		Realm:             cfg.Client.Name,
		CORS:              cors,
		TrustProxy:        cfg.Security.TrustProxy,
		TrustedProxyCount: cfg.Security.TrustedProxyCount,
	})

	if cfg.Security.RateLimitRPS > 0 {
		rl := security.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst, logger)
		defer rl.Stop()
		handler.SetRateLimiter(rl)
		if err := inst.RegisterRateLimiterCallback(func() int64 {
			return int64(rl.GetStats().CurrentEntries)
		}); err != nil {
			logger.Warn("Failed to register rate limiter gauge", "error", err)
		}
		logger.Info("Rate limiting enabled",
			"requests_per_second", cfg.Security.RateLimitRPS,
			"burst", cfg.Security.RateLimitBurst)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Authorization server starting",
			"addr", cfg.HTTP.Addr,
			"issuer", cfg.OAuth.Issuer,
			"env", cfg.Env,
			"code_store", cfg.CodeStore.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// newClientRegistry hashes the configured default client's secret and
// registers it as the only client.
func newClientRegistry(cc config.ClientConfig) (*memory.ClientRegistry, error) {
	hash, err := security.HashClientSecret(cc.Secret, cc.SecretCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}

	registry, err := memory.NewClientRegistry(storage.Client{
		ClientID:         cc.ID,
		ClientSecretHash: hash,
		ClientName:       cc.Name,
		RedirectURIs:     cc.RedirectURIs,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client registry: %w", err)
	}
	return registry, nil
}

// newCodeStore builds the configured authorization code store. The returned
// func releases its resources.
func newCodeStore(cfg *config.Config, inst *instrumentation.Instrumentation, logger *slog.Logger) (storage.CodeStore, func(), error) {
	var key []byte
	if cfg.CodeStore.EncryptionKey != "" {
		var err error
		if key, err = security.KeyFromBase64(cfg.CodeStore.EncryptionKey); err != nil {
			return nil, nil, fmt.Errorf("invalid CODE_STORE_ENCRYPTION_KEY: %w", err)
		}
	}
	encryptor, err := security.NewEncryptor(key)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.CodeStore.Backend {
	case config.CodeStoreValkey:
		store, err := valkey.New(valkey.Config{
			Address:   cfg.Valkey.Addr,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.CodeStore.KeyPrefix,
			Encryptor: encryptor,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		store.SetInstrumentation(inst)
		logger.Info("Using valkey code store", "addr", cfg.Valkey.Addr, "encrypted", encryptor.IsEnabled())
		return store, store.Close, nil

	case config.CodeStoreRedis:
		store, err := redis.New(redis.Config{
			Address:   cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.CodeStore.KeyPrefix,
			Encryptor: encryptor,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store.SetInstrumentation(inst)
		logger.Info("Using redis code store", "addr", cfg.Redis.Addr, "encrypted", encryptor.IsEnabled())
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close redis client", "error", err)
			}
		}, nil

	default:
		store := memory.New()
		store.SetLogger(logger)
		store.SetInstrumentation(inst)
		logger.Info("Using in-memory code store")
		return store, store.Stop, nil
	}
}

func loadDataset(path string) (*verification.Dataset, error) {
	if path == "" {
		return verification.DefaultDataset()
	}
	ds, err := verification.LoadDataset(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load phone data %s: %w", path, err)
	}
	return ds, nil
}

func datasetSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
