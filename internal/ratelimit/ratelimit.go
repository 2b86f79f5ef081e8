// Package ratelimit guards automation triggers (spec.md §5: "automatic
// status changes on file change") against feedback loops: a token
// bucket caps how often a key may fire at all, and a separate per-key
// debounce window suppresses a second fire while one is still fresh.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nrvault/memtask/internal/logging"
)

// Config sets the shared token-bucket rate/burst and the per-key
// debounce window applied to every key a Limiter sees.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	Debounce          time.Duration
}

// DefaultConfig matches spec.md §5's automation defaults: infrequent
// enough to never visibly throttle a human, tight enough to break a
// watcher/automation feedback loop.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 1, Burst: 3, Debounce: 2 * time.Second}
}

// Limiter holds one token bucket and one debounce deadline per key
// (e.g. a task id), created lazily on first use, following the
// per-client-IP limiter map pattern used elsewhere in the stack.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	debounce map[string]time.Time
}

// New builds a Limiter. A zero Config uses DefaultConfig.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{
		cfg:      cfg,
		buckets:  make(map[string]*rate.Limiter),
		debounce: make(map[string]time.Time),
	}
}

// Allow reports whether the trigger for key may fire now. It combines
// both guards: a key inside its debounce window is refused without
// consuming a token; otherwise a token is drawn from that key's
// bucket. A refusal is not an error — it means "sit this one out."
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.debounce[key]; ok && now.Before(until) {
		return false
	}

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
		l.buckets[key] = bucket
	}
	if !bucket.Allow() {
		logging.Get(logging.CategoryRatelimit).Debug("ratelimit: token bucket exhausted for key %s", key)
		return false
	}

	l.debounce[key] = now.Add(l.cfg.Debounce)
	return true
}

// Reset drops key's bucket and debounce deadline, returning it to a
// fresh state. Used by tests and by explicit operator overrides.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	delete(l.debounce, key)
}
