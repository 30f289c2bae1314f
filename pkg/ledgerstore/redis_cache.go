package ledgerstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache is an optional fast-path in front of a Store's
// FindByLeaf: a SETNX-guarded leaf->seq mapping that lets a busy
// ledgerd avoid round-tripping to Postgres/SQLite on the common case
// of a client retrying an append it already submitted. It is advisory
// only — the underlying Store's unique constraint on leaf remains the
// correctness backstop, matching how limiter_redis.go treats Redis as
// an accelerator rather than the source of truth.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyCache wires a Redis client as a leaf->seq cache. ttl
// bounds how long a cached mapping is trusted before falling back to
// the Store; pass 0 to cache indefinitely.
func NewIdempotencyCache(addr, password string, db int, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func cacheKey(leaf [32]byte) string {
	return fmt.Sprintf("tecp:ledger:leaf:%s", hex.EncodeToString(leaf[:]))
}

// Lookup returns the cached seq for leaf, or (0, false, nil) on a cache
// miss. A Redis error is returned so callers can decide whether to
// treat the cache as unavailable and fall through to the Store.
func (c *IdempotencyCache) Lookup(ctx context.Context, leaf [32]byte) (uint64, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(leaf)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	seq, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency cache entry for leaf: %w", err)
	}
	return seq, true, nil
}

// Remember records leaf -> seq. SetNX is used rather than Set so a
// concurrent writer that already cached a different seq for this leaf
// (should never happen under correct Store semantics, but Redis state
// can outlive a Store rollback) is not silently overwritten.
func (c *IdempotencyCache) Remember(ctx context.Context, leaf [32]byte, seq uint64) error {
	ok, err := c.client.SetNX(ctx, cacheKey(leaf), strconv.FormatUint(seq, 10), c.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		// Already cached by a concurrent append; not an error.
		return nil
	}
	return nil
}
