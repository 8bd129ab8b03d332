// Package pool implements the per-session frame-buffer pool: small free
// lists per size bucket so the steady-state capture path never allocates.
//
// Design:
//   - Acquire never blocks: empty bucket falls back to make([]byte, n)
//   - Release retains at most MaxCachedPerBucket buffers per size
//   - Buffers above MaxFrameSize are never cached, bounding growth when
//     a session renegotiates to a smaller format
//   - One pool per session; not shared, destroyed with it
package pool

import "sync"

// DefaultMaxCachedPerBucket bounds how many free buffers one size bucket
// retains.
const DefaultMaxCachedPerBucket = 4

// Config tunes a Pool. Zero values select the defaults.
type Config struct {
	// MaxFrameSize is the high-water mark in bytes; larger buffers are
	// handed out but never cached on release. Zero means unlimited.
	MaxFrameSize int
	// MaxCachedPerBucket bounds the free list per size bucket.
	MaxCachedPerBucket int
}

// Stats is a point-in-time snapshot of pool behavior.
type Stats struct {
	// Hits counts acquires served from a free list.
	Hits uint64
	// Misses counts acquires that had to allocate.
	Misses uint64
	// Discards counts released buffers dropped instead of cached.
	Discards uint64
	// Cached is the current number of retained buffers across buckets.
	Cached int
}

// Pool is a size-bucketed free list. Safe for concurrent use; the
// capture goroutine acquires while consumer goroutines release.
type Pool struct {
	mu      sync.Mutex
	buckets map[int][][]byte
	cfg     Config

	hits     uint64
	misses   uint64
	discards uint64
	cached   int
}

// New creates a pool with the given tuning.
func New(cfg Config) *Pool {
	if cfg.MaxCachedPerBucket <= 0 {
		cfg.MaxCachedPerBucket = DefaultMaxCachedPerBucket
	}
	return &Pool{
		buckets: make(map[int][][]byte),
		cfg:     cfg,
	}
}

// Acquire returns a buffer of exactly size bytes. Never blocks; an empty
// bucket allocates directly. Size zero returns nil.
func (p *Pool) Acquire(size int) []byte {
	if size <= 0 {
		return nil
	}

	p.mu.Lock()
	if free := p.buckets[size]; len(free) > 0 {
		buf := free[len(free)-1]
		p.buckets[size] = free[:len(free)-1]
		p.cached--
		p.hits++
		p.mu.Unlock()
		return buf
	}
	p.misses++
	p.mu.Unlock()

	return make([]byte, size)
}

// Release returns a buffer for reuse. Oversized and surplus buffers are
// discarded so memory stays bounded under format changes.
func (p *Pool) Release(buf []byte) {
	size := cap(buf)
	if size == 0 {
		return
	}
	buf = buf[:size]

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.MaxFrameSize > 0 && size > p.cfg.MaxFrameSize {
		p.discards++
		return
	}
	if len(p.buckets[size]) >= p.cfg.MaxCachedPerBucket {
		p.discards++
		return
	}
	p.buckets[size] = append(p.buckets[size], buf)
	p.cached++
}

// Drain empties every free list. Called on session close.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = make(map[int][][]byte)
	p.cached = 0
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Hits:     p.hits,
		Misses:   p.misses,
		Discards: p.discards,
		Cached:   p.cached,
	}
}
