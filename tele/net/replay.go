package telenet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

var ErrReplay = fmt.Errorf("possible replay attack")

// ReplayGuard remembers accepted (timestamp, nonce) pairs.
// Check must be atomic check-then-insert.
type ReplayGuard interface {
	Check(ctx context.Context, timestamp uint64, nonce uint16) error
	// Prune forgets timestamps older than now-maxDeltaT.
	Prune(ctx context.Context, now int64, maxDeltaT int)
}

// MemoryGuard is process local ReplayGuard.
// Memory is bounded by 2*maxDeltaT timestamp buckets if Prune is called after each accepted message.
type MemoryGuard struct {
	mu sync.Mutex
	m  map[uint64]map[uint16]struct{}
}

var _ ReplayGuard = &MemoryGuard{}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{m: make(map[uint64]map[uint16]struct{})}
}

func (g *MemoryGuard) Check(_ context.Context, timestamp uint64, nonce uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	nonces, ok := g.m[timestamp]
	if !ok {
		nonces = make(map[uint16]struct{}, 1)
		g.m[timestamp] = nonces
	}
	if _, seen := nonces[nonce]; seen {
		return errors.Annotatef(ErrReplay, "nonce=%d already known for timestamp=%d", nonce, timestamp)
	}
	nonces[nonce] = struct{}{}
	return nil
}

func (g *MemoryGuard) Prune(_ context.Context, now int64, maxDeltaT int) {
	cutoff := now - int64(maxDeltaT)
	g.mu.Lock()
	defer g.mu.Unlock()
	for t := range g.m {
		if int64(t) < cutoff {
			delete(g.m, t)
		}
	}
}

// Len returns number of remembered timestamps.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// RedisGuard shares replay state between receiver processes.
// SETNX provides atomic check-then-insert, key TTL replaces Prune.
type RedisGuard struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ ReplayGuard = &RedisGuard{}

func NewRedisGuard(rdb redis.Cmdable, prefix string, maxDeltaT int) *RedisGuard {
	if prefix == "" {
		prefix = "udpinsert:nonce"
	}
	return &RedisGuard{
		rdb:    rdb,
		prefix: prefix,
		ttl:    time.Duration(2*maxDeltaT+1) * time.Second,
	}
}

func (g *RedisGuard) Check(ctx context.Context, timestamp uint64, nonce uint16) error {
	key := fmt.Sprintf("%s:%d:%d", g.prefix, timestamp, nonce)
	ok, err := g.rdb.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return errors.Annotatef(err, "redis setnx key=%s", key)
	}
	if !ok {
		return errors.Annotatef(ErrReplay, "nonce=%d already known for timestamp=%d", nonce, timestamp)
	}
	return nil
}

func (g *RedisGuard) Prune(context.Context, int64, int) {}
