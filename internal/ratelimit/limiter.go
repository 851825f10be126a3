package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Rate-limit accounting headers. Present on every response, success or
// failure.
const (
	headerRemaining  = "X-RateLimit-Remaining"
	headerLimit      = "X-RateLimit-Limit"
	headerResetAfter = "X-RateLimit-Reset-After"
	headerBucket     = "X-RateLimit-Bucket"
	headerGlobal     = "X-RateLimit-Global"
	headerRetryAfter = "Retry-After"
)

// DefaultIdleTTL is how long an untouched bucket survives before the
// janitor evicts it.
const DefaultIdleTTL = 10 * time.Minute

const janitorInterval = time.Minute

// Bucket tracks token accounting for one server-side rate-limit bucket.
// Opaque to callers: Acquire hands one out, Release takes it back. The mu
// is held from Acquire until Release, serializing same-bucket requests.
type Bucket struct {
	mu sync.Mutex

	route     Route  // route this bucket was created under
	hash      string // server-assigned hash, "" until first Release
	remaining int
	limit     int
	resetAt   time.Time // derived from relative reset-after at release time
	lastUsed  time.Time
}

// Limiter owns all buckets and the global pause signal. Buckets are
// mutated only through Acquire and Release.
type Limiter struct {
	mu      sync.Mutex
	routes  map[string]*Bucket // route key -> bucket
	hashes  map[string]*Bucket // server hash -> bucket
	global  time.Time          // all acquisitions wait until this instant
	idleTTL time.Duration

	logger *slog.Logger
	done   chan struct{}
}

// NewLimiter creates a limiter and starts its idle-bucket janitor.
func NewLimiter(idleTTL time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}

	l := &Limiter{
		routes:  make(map[string]*Bucket),
		hashes:  make(map[string]*Bucket),
		idleTTL: idleTTL,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go l.janitor()

	return l
}

// Close stops the janitor. In-flight acquisitions are unaffected.
func (l *Limiter) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// SetGlobalPause suspends all acquisitions for d. Triggered by a
// global-flagged over-limit response.
func (l *Limiter) SetGlobalPause(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(l.global) {
		l.global = until
		l.logger.Warn("global rate limit pause", "duration", d)
	}
}

// Acquire blocks until the route's bucket has a free token, then returns
// the bucket locked. Every successful Acquire must be paired with exactly
// one Release of the returned bucket.
func (l *Limiter) Acquire(ctx context.Context, route Route) (*Bucket, error) {
	b := l.bucketFor(route)

	b.mu.Lock()

	// Wait out an exhausted window. resetAt was computed from the
	// relative reset-after header, so server clock skew is irrelevant.
	if b.remaining <= 0 && b.limit > 0 {
		if wait := time.Until(b.resetAt); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				b.mu.Unlock()
				return nil, err
			}
		}
		b.remaining = b.limit
	}

	// Wait out a global pause. Checked after the bucket wait so a pause
	// set mid-wait is still honored.
	for {
		l.mu.Lock()
		wait := time.Until(l.global)
		l.mu.Unlock()
		if wait <= 0 {
			break
		}
		if err := l.sleep(ctx, wait); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}

	if b.remaining > 0 {
		b.remaining--
	}
	b.lastUsed = time.Now()

	return b, nil
}

// Release updates the bucket from response headers and unlocks it. The
// server may group several routes under one bucket; the hash->route
// mapping is reconciled here. Headers may be nil when the request never
// produced a response.
func (l *Limiter) Release(b *Bucket, header http.Header) {
	defer b.mu.Unlock()

	b.lastUsed = time.Now()
	if header == nil {
		return
	}

	if v := header.Get(headerLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			b.limit = n
		}
	}
	if v := header.Get(headerRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			b.remaining = n
		}
	}
	if v := header.Get(headerResetAfter); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			b.resetAt = time.Now().Add(time.Duration(secs * float64(time.Second)))
		}
	}

	if header.Get(headerGlobal) != "" {
		if v := header.Get(headerRetryAfter); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				l.SetGlobalPause(time.Duration(secs * float64(time.Second)))
			}
		}
	}

	if hash := header.Get(headerBucket); hash != "" && hash != b.hash {
		l.reconcileHash(b, hash)
	}
}

// bucketFor returns the bucket owning route, creating it lazily. A route
// maps to exactly one bucket at any instant.
func (l *Limiter) bucketFor(route Route) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := route.Key()
	if b, ok := l.routes[key]; ok {
		return b
	}

	b := &Bucket{route: route, remaining: 1, lastUsed: time.Now()}
	l.routes[key] = b
	return b
}

// reconcileHash records a server-assigned hash. When another route already
// owns the hash, this route is re-pointed at the shared bucket so future
// acquisitions serialize together. An in-flight request on the old bucket
// finishes undisturbed.
func (l *Limiter) reconcileHash(b *Bucket, hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if shared, ok := l.hashes[hash]; ok && shared != b {
		l.routes[b.route.Key()] = shared
		l.logger.Debug("route joined shared bucket",
			"route", b.route.Key(),
			"hash", hash,
		)
		return
	}

	b.hash = hash
	l.hashes[hash] = b
}

// sleep waits for d or context cancellation.
func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// janitor evicts buckets idle past the TTL.
func (l *Limiter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.idleTTL)
	for key, b := range l.routes {
		// Skip buckets with a request in flight.
		if !b.mu.TryLock() {
			continue
		}
		idle := b.lastUsed.Before(cutoff)
		b.mu.Unlock()

		if idle {
			delete(l.routes, key)
			if b.hash != "" && l.hashes[b.hash] == b {
				delete(l.hashes, b.hash)
			}
		}
	}
}
