package security

import (
	"container/list"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimitMaxEntries bounds the number of tracked identifiers.
	DefaultRateLimitMaxEntries = 10000

	defaultRateLimitCleanupInterval = 5 * time.Minute
	defaultRateLimitIdleTimeout     = 30 * time.Minute
)

type limiterEntry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a per-identifier token bucket. The least recently used
// identifiers are evicted once MaxEntries is reached, and idle ones are swept
// by a background goroutine until Stop is called.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	limit      rate.Limit
	burst      int
	maxEntries int
	idle       time.Duration
	logger     *slog.Logger

	stopOnce    sync.Once
	stopCleanup chan struct{}

	evictions int64
	cleanups  int64
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given
// burst per identifier, tracking at most DefaultRateLimitMaxEntries identifiers.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(requestsPerSecond, burst, DefaultRateLimitMaxEntries, logger)
}

// NewRateLimiterWithConfig is NewRateLimiter with an explicit identifier bound.
// maxEntries of 0 disables the bound.
func NewRateLimiterWithConfig(requestsPerSecond float64, burst, maxEntries int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		logger.Warn("Invalid rate limiter max entries, using default", "max_entries", maxEntries)
		maxEntries = DefaultRateLimitMaxEntries
	}
	if burst < 1 {
		burst = 1
	}

	rl := &RateLimiter{
		entries:     make(map[string]*list.Element),
		lru:         list.New(),
		limit:       rate.Limit(requestsPerSecond),
		burst:       burst,
		maxEntries:  maxEntries,
		idle:        defaultRateLimitIdleTimeout,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	go rl.cleanupLoop(defaultRateLimitCleanupInterval)
	return rl
}

// Allow consumes one token for key and reports whether the request may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[key]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.AllowN(now, 1)
	}

	if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &limiterEntry{
		key:        key,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	}
	rl.entries[key] = rl.lru.PushFront(entry)
	return entry.limiter.AllowN(now, 1)
}

// RetryAfter is the whole number of seconds a rejected caller should wait for
// one token to be refilled.
func (rl *RateLimiter) RetryAfter() int {
	if rl.limit <= 0 || rl.limit == rate.Inf {
		return 60
	}
	secs := int(math.Ceil(1 / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// must hold rl.mu
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	entry := rl.lru.Remove(elem).(*limiterEntry)
	delete(rl.entries, entry.key)
	rl.evictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"total_evictions", rl.evictions,
		"current_entries", len(rl.entries))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(rl.idle)
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup drops identifiers that have not been seen for maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	// The list is ordered by recency, so walk from the back and stop at the
	// first entry that is still fresh.
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if !entry.lastAccess.Before(cutoff) {
			break
		}
		prev := elem.Prev()
		rl.lru.Remove(elem)
		delete(rl.entries, entry.key)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.cleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.entries))
	}
}

// Stop ends the background cleanup. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// Stats is a snapshot of limiter bookkeeping.
type Stats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalCleanups  int64
	// MemoryPressure is CurrentEntries as a percentage of MaxEntries.
	MemoryPressure float64
}

// GetStats returns current counters.
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	s := Stats{
		CurrentEntries: len(rl.entries),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.evictions,
		TotalCleanups:  rl.cleanups,
	}
	if rl.maxEntries > 0 {
		s.MemoryPressure = float64(s.CurrentEntries) / float64(rl.maxEntries) * 100
	}
	return s
}
