// Package cache holds the delegated-token cache and the login state
// stores. The delegated cache is the only shared mutable state on the
// delegation hot path.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"go.aldar.dev/ariagate/internal/metrics"
)

// DefaultSafetyMargin is how close to expiry a cached delegated token may
// still be served. Matches the provider-side refresh buffer.
const DefaultSafetyMargin = 5 * time.Minute

// ExchangeFunc performs one on-behalf-of exchange and returns the
// delegated token with its provider-declared lifetime in seconds.
type ExchangeFunc func(ctx context.Context) (token string, expiresIn int, err error)

type delegatedEntry struct {
	token     string
	expiresAt time.Time
}

// DelegatedTokenCache caches delegated tokens per (user, scope) key.
// Concurrent misses on the same key collapse into a single upstream
// exchange (singleflight); distinct keys never contend with each other.
// Entries are evicted by the ttlcache reaper and additionally guarded by
// a safety margin on read, so a token is never used within margin of its
// expiry. Cached values are only ever used server-side to attach
// Authorization headers; they are never returned to external clients.
type DelegatedTokenCache struct {
	entries *ttlcache.Cache[string, delegatedEntry]
	group   singleflight.Group

	safetyMargin    time.Duration
	ttlCap          time.Duration
	exchangeTimeout time.Duration
}

// NewDelegatedTokenCache creates the cache. ttlCap bounds how long a
// token may be cached regardless of the provider-declared expiry;
// exchangeTimeout is the deadline for the shared exchange call.
func NewDelegatedTokenCache(ttlCap, exchangeTimeout time.Duration) *DelegatedTokenCache {
	entries := ttlcache.New(
		ttlcache.WithTTL[string, delegatedEntry](ttlCap),
		ttlcache.WithDisableTouchOnHit[string, delegatedEntry](),
	)
	go entries.Start()

	return &DelegatedTokenCache{
		entries:         entries,
		safetyMargin:    DefaultSafetyMargin,
		ttlCap:          ttlCap,
		exchangeTimeout: exchangeTimeout,
	}
}

// Close stops the eviction reaper.
func (c *DelegatedTokenCache) Close() {
	c.entries.Stop()
}

func cacheKey(userID, scope string) string {
	return userID + "\x00" + scope
}

// GetOrExchange returns a valid delegated token for (userID, scope),
// performing at most one upstream exchange per key even under concurrent
// callers. All waiters on an in-flight exchange share its result; a
// failed exchange is delivered to every waiter and nothing is cached, so
// other keys are unaffected.
//
// The exchange runs on a context detached from the triggering caller:
// cancelling one request must not kill work other waiters depend on. The
// exchange still carries its own deadline so a slow provider cannot
// stall the key forever.
func (c *DelegatedTokenCache) GetOrExchange(ctx context.Context, userID, scope string, exchange ExchangeFunc) (string, error) {
	key := cacheKey(userID, scope)

	if token, ok := c.lookup(key); ok {
		metrics.DelegatedCacheHitsTotal.Inc()
		log.Ctx(ctx).Debug().Str("user_id", userID).Str("scope", scope).Msg("Delegated token cache hit")
		return token, nil
	}
	metrics.DelegatedCacheMissTotal.Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		// Double-check under the flight: another caller may have
		// populated the entry between our lookup and here.
		if token, ok := c.lookup(key); ok {
			return token, nil
		}

		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.exchangeTimeout)
		defer cancel()

		token, expiresIn, err := exchange(exCtx)
		if err != nil {
			return "", err
		}

		ttl := c.ttlFor(expiresIn)
		c.entries.Set(key, delegatedEntry{token: token, expiresAt: time.Now().Add(ttl)}, ttl)
		log.Ctx(ctx).Info().
			Str("user_id", userID).
			Str("scope", scope).
			Dur("ttl", ttl).
			Msg("Delegated token cached")
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		// Only this caller gives up; the flight completes for the rest.
		return "", ctx.Err()
	}
}

// Invalidate drops the entry for (userID, scope), forcing the next call
// to exchange again. Used when the downstream rejects a token early.
func (c *DelegatedTokenCache) Invalidate(userID, scope string) {
	c.entries.Delete(cacheKey(userID, scope))
}

func (c *DelegatedTokenCache) lookup(key string) (string, bool) {
	item := c.entries.Get(key)
	if item == nil {
		return "", false
	}
	entry := item.Value()
	if time.Now().After(entry.expiresAt.Add(-c.safetyMargin)) {
		return "", false
	}
	return entry.token, true
}

// ttlFor converts the provider-declared lifetime to a cache TTL, capped
// so a misbehaving provider cannot pin a token for days. A missing or
// nonsensical expiry falls back to the cap.
func (c *DelegatedTokenCache) ttlFor(expiresIn int) time.Duration {
	if expiresIn <= 0 {
		return c.ttlCap
	}
	ttl := time.Duration(expiresIn) * time.Second
	if ttl > c.ttlCap {
		return c.ttlCap
	}
	return ttl
}
