package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/internal/util"
	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/storage"
)

const (
	// DefaultKeyPrefix is prepended to every key.
	DefaultKeyPrefix = "extension-oauth:"

	codeLogLength           = 8
	connectionVerifyTimeout = 5 * time.Second
	backendName             = "redis"
)

// Config holds configuration for the Redis code store.
type Config struct {
	// Address is the Redis server address, e.g. "localhost:6379".
	Address string

	Password string
	DB       int

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string

	TLS *tls.Config

	// Encryptor seals stored payloads. Nil stores plain JSON.
	Encryptor *security.Encryptor

	Logger *slog.Logger
}

// Store is a Redis-backed storage.CodeStore.
type Store struct {
	client goredis.UniversalClient
	prefix string
	codec  *storage.CodeCodec
	logger *slog.Logger
	now    func() time.Time

	instMu          sync.RWMutex
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var _ storage.CodeStore = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:      cfg.Address,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewWithClient(client, cfg)
	s.logger.Info("Connected to Redis code store",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix,
		"encrypted", s.codec.Encrypted())
	return s, nil
}

// NewWithClient wraps an existing client. Connection fields of cfg are ignored.
func NewWithClient(client goredis.UniversalClient, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client: client,
		prefix: prefix,
		codec:  storage.NewCodeCodec(cfg.Encryptor),
		logger: logger,
		now:    time.Now,
	}
}

// Close closes the Redis client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	s.logger.Info("Redis code store connection closed")
	return nil
}

// SetInstrumentation enables spans and metrics for store operations.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instMu.Lock()
	defer s.instMu.Unlock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

func (s *Store) codeKey(code string) string {
	return s.prefix + "code:" + code
}

// SaveAuthorizationCode writes code with a TTL ending at its expiry.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()
	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if err = code.Validate(); err != nil {
		return err
	}

	ttl := storage.TTL(code, s.now())
	if ttl <= 0 {
		err = fmt.Errorf("%w: already expired", storage.ErrInvalidAuthorizationCode)
		return err
	}

	payload, err := s.codec.Marshal(code)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.codeKey(code.Code), payload, ttl).Result()
	if err != nil {
		err = fmt.Errorf("failed to save authorization code: %w", err)
		return err
	}
	if !created {
		err = fmt.Errorf("%w: code already exists", storage.ErrInvalidAuthorizationCode)
		return err
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, codeLogLength),
		"client_id", code.ClientID,
		"ttl", ttl)
	return nil
}

// RedeemAuthorizationCode atomically reads and deletes code with GETDEL.
func (s *Store) RedeemAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "redeem_authorization_code")
	defer span.End()
	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "redeem_authorization_code", err, startTime)
	}()

	payload, err := s.client.GetDel(ctx, s.codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			err = storage.ErrAuthorizationCodeNotFound
			return nil, err
		}
		err = fmt.Errorf("failed to redeem authorization code: %w", err)
		return nil, err
	}

	authCode, err := s.codec.Unmarshal(payload)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Redeemed authorization code",
		"code_prefix", util.SafeTruncate(code, codeLogLength))
	return authCode, nil
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.instMu.RLock()
	tracer := s.tracer
	s.instMu.RUnlock()

	if tracer == nil {
		return ctx, noop.Span{}
	}
	return tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, backendName),
		))
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	s.instMu.RLock()
	inst := s.instrumentation
	s.instMu.RUnlock()

	if inst == nil {
		return
	}

	result := "success"
	switch {
	case errors.Is(err, storage.ErrAuthorizationCodeNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
		instrumentation.RecordError(span, err)
	default:
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	inst.Metrics().RecordStorageOperation(ctx, backendName, operation, result, durationMs)
}
