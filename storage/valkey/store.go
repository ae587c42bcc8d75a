package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
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
	backendName             = "valkey"
)

// luaRedeemCode returns the payload stored at KEYS[1] and deletes it.
const luaRedeemCode = `
local value = redis.call('GET', KEYS[1])
if value then
  redis.call('DEL', KEYS[1])
end
return value
`

// Config holds configuration for the Valkey code store.
type Config struct {
	// Address is the Valkey server address, e.g. "localhost:6379".
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

// Store is a Valkey-backed storage.CodeStore.
type Store struct {
	client valkeygo.Client
	prefix string
	codec  *storage.CodeCodec
	logger *slog.Logger
	now    func() time.Time

	instMu          sync.RWMutex
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var _ storage.CodeStore = (*Store)(nil)

// New connects to Valkey and verifies the connection with PING.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("valkey address is required")
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
		TLSConfig:   cfg.TLS,
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	s := NewWithClient(client, cfg)
	s.logger.Info("Connected to Valkey code store",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix,
		"encrypted", s.codec.Encrypted())
	return s, nil
}

// NewWithClient wraps an existing client. Address, Password, DB and TLS in
// cfg are ignored.
func NewWithClient(client valkeygo.Client, cfg Config) *Store {
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

// Close closes the Valkey client.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey code store connection closed")
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

	// NX: a colliding code must never overwrite a pending one.
	err = s.client.Do(ctx,
		s.client.B().Set().Key(s.codeKey(code.Code)).Value(payload).Nx().ExSeconds(int64(ttl/time.Second)).Build(),
	).Error()
	if valkeygo.IsValkeyNil(err) {
		err = fmt.Errorf("%w: code already exists", storage.ErrInvalidAuthorizationCode)
		return err
	}
	if err != nil {
		err = fmt.Errorf("failed to save authorization code: %w", err)
		return err
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, codeLogLength),
		"client_id", code.ClientID,
		"ttl", ttl)
	return nil
}

// RedeemAuthorizationCode atomically reads and deletes code.
func (s *Store) RedeemAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "redeem_authorization_code")
	defer span.End()
	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "redeem_authorization_code", err, startTime)
	}()

	payload, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaRedeemCode).Numkeys(1).Key(s.codeKey(code)).Build(),
	).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
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
