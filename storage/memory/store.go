package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/internal/util"
	"github.com/droneregistry/extension-oauth/storage"
)

const (
	// codeLogLength is how much of a code may appear in debug logs.
	codeLogLength = 8

	// DefaultSweepInterval is how often expired codes are swept.
	DefaultSweepInterval = time.Minute

	backendName = "memory"
)

// Store is an in-memory storage.CodeStore.
type Store struct {
	mu    sync.RWMutex
	codes map[string]*storage.AuthorizationCode

	// pending mirrors len(codes) for lock-free gauge reads.
	pending atomic.Int64

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	now           func() time.Time
	sweepInterval time.Duration
	stopOnce      sync.Once
	stopSweep     chan struct{}
	logger        *slog.Logger
}

var _ storage.CodeStore = (*Store)(nil)

// New creates a store sweeping expired codes every DefaultSweepInterval.
func New() *Store {
	return NewWithInterval(DefaultSweepInterval)
}

// NewWithInterval creates a store with a custom sweep interval. A
// non-positive interval uses DefaultSweepInterval.
func NewWithInterval(sweepInterval time.Duration) *Store {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	s := &Store{
		codes:         make(map[string]*storage.AuthorizationCode),
		now:           time.Now,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
		logger:        slog.Default(),
	}
	go s.sweepLoop()
	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the clock used by the sweep.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetInstrumentation enables spans and metrics for store operations and
// publishes the number of pending codes as a gauge.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	logger := s.logger
	s.mu.Unlock()

	if inst != nil {
		if err := inst.RegisterCodeStoreSizeCallback(s.pending.Load); err != nil {
			logger.Warn("Failed to register code store size callback", "error", err)
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopSweep) })
}

// Len returns the number of codes currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// SaveAuthorizationCode stores a copy of code.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		err = fmt.Errorf("%w: code already exists", storage.ErrInvalidAuthorizationCode)
		return err
	}
	s.codes[code.Code] = code.Clone()
	s.pending.Store(int64(len(s.codes)))

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, codeLogLength),
		"client_id", code.ClientID)
	return nil
}

// RedeemAuthorizationCode removes code and returns its metadata. Expiry is
// left to the caller.
func (s *Store) RedeemAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "redeem_authorization_code")
	defer span.End()
	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "redeem_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}
	delete(s.codes, code)
	s.pending.Store(int64(len(s.codes)))

	s.logger.Debug("Redeemed authorization code",
		"code_prefix", util.SafeTruncate(code, codeLogLength))
	return entry, nil
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops codes that expired without being redeemed.
func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, code := range s.codes {
		if code.IsExpired(now) {
			delete(s.codes, key)
			removed++
		}
	}
	s.pending.Store(int64(len(s.codes)))

	if removed > 0 {
		s.logger.Debug("Swept expired authorization codes",
			"removed", removed,
			"remaining", len(s.codes))
	}
	return removed
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

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
	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()

	if inst == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	inst.Metrics().RecordStorageOperation(ctx, backendName, operation, result, durationMs)
}
