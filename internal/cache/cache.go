package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
)

// Store is the key-value surface the layer needs. *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key, field string, value any) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HLen(ctx context.Context, key string) (int64, error)
	FixedWindowAllow(ctx context.Context, userID, action string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// TTLPolicy chooses the lifetime of a computed value. A non-positive TTL skips the write.
type TTLPolicy[T any] func(value T) time.Duration

// FixedTTL stores every value for ttl.
func FixedTTL[T any](ttl time.Duration) TTLPolicy[T] {
	return func(T) time.Duration { return ttl }
}

// Layer is the cache coherence layer: read-through JSON values, exact and prefix
// invalidation, cart hash primitives and rate counters.
type Layer struct {
	store   Store
	logg    *logger.Logger
	metrics *metrics.CacheMetrics
}

// NewLayer wires the layer over store. Metrics may be nil.
func NewLayer(store Store, logg *logger.Logger, m *metrics.CacheMetrics) (*Layer, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Layer{store: store, logg: logg, metrics: m}, nil
}

// ReadThrough returns the cached value under key when present, otherwise runs
// compute and stores its JSON encoding with the TTL chosen by policy. Cache
// failures are logged and degrade to compute; only compute errors are returned.
func ReadThrough[T any](ctx context.Context, l *Layer, key string, policy TTLPolicy[T], compute func(ctx context.Context) (T, error)) (T, bool, error) {
	ns := redis.Namespace(key)

	raw, err := l.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached T
		if decodeErr := json.Unmarshal([]byte(raw), &cached); decodeErr == nil {
			l.metrics.Hit(ns)
			return cached, true, nil
		}
		l.metrics.Error(ns, "decode")
		l.logg.Warn(l.logg.WithField(ctx, "cache_key", key), "discarding undecodable cache entry")
	case !redis.IsNil(err):
		l.metrics.Error(ns, "get")
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{"cache_key": key, "error": err.Error()}), "cache read failed")
	}
	l.metrics.Miss(ns)

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	ttl := time.Duration(0)
	if policy != nil {
		ttl = policy(value)
	}
	if ttl <= 0 {
		return value, false, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		l.metrics.Error(ns, "encode")
		l.logg.Warn(l.logg.WithField(ctx, "cache_key", key), "cache encode failed")
		return value, false, nil
	}
	if err := l.store.Set(ctx, key, string(payload), ttl); err != nil {
		l.metrics.Error(ns, "set")
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{"cache_key": key, "error": err.Error()}), "cache write failed")
	}
	return value, false, nil
}

// Invalidate deletes the exact keys.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := l.store.Del(ctx, keys...); err != nil {
		l.metrics.Error(redis.Namespace(keys[0]), "del")
		return classify(err, "invalidate cache keys")
	}
	return nil
}

// InvalidatePrefix deletes every key under prefix and reports how many were removed.
func (l *Layer) InvalidatePrefix(ctx context.Context, prefix string) (int64, error) {
	n, err := l.store.DeletePrefix(ctx, prefix)
	if err != nil {
		l.metrics.Error(redis.Namespace(prefix), "del_prefix")
		return n, classify(err, fmt.Sprintf("invalidate prefix %s", prefix))
	}
	return n, nil
}

// CartItems returns the cart hash as product id to quantity. A missing cart is empty.
func (l *Layer) CartItems(ctx context.Context, userID string) (map[string]int, error) {
	raw, err := l.store.HGetAll(ctx, redis.CartKey(userID))
	if err != nil {
		return nil, classify(err, "read cart")
	}
	items := make(map[string]int, len(raw))
	for productID, value := range raw {
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("cart quantity for %s", productID))
		}
		items[productID] = qty
	}
	return items, nil
}

// CartIncr atomically adds delta to a cart line and returns the new quantity.
func (l *Layer) CartIncr(ctx context.Context, userID, productID string, delta int) (int, error) {
	v, err := l.store.HIncrBy(ctx, redis.CartKey(userID), productID, int64(delta))
	if err != nil {
		return 0, classify(err, "update cart line")
	}
	return int(v), nil
}

// CartSet overwrites a cart line.
func (l *Layer) CartSet(ctx context.Context, userID, productID string, qty int) error {
	if err := l.store.HSet(ctx, redis.CartKey(userID), productID, qty); err != nil {
		return classify(err, "set cart line")
	}
	return nil
}

// CartRemove deletes a cart line and returns how many lines remain. Redis drops
// the hash itself when its last field goes, so the key is never deleted here.
func (l *Layer) CartRemove(ctx context.Context, userID, productID string) (int, error) {
	key := redis.CartKey(userID)
	if _, err := l.store.HDel(ctx, key, productID); err != nil {
		return 0, classify(err, "remove cart line")
	}
	remaining, err := l.store.HLen(ctx, key)
	if err != nil {
		return 0, classify(err, "count cart lines")
	}
	return int(remaining), nil
}

// CartTouch refreshes the cart TTL.
func (l *Layer) CartTouch(ctx context.Context, userID string, ttl time.Duration) error {
	if err := l.store.Expire(ctx, redis.CartKey(userID), ttl); err != nil {
		return classify(err, "refresh cart ttl")
	}
	return nil
}

// CartTTL returns the remaining cart lifetime, or 0 when there is no cart.
func (l *Layer) CartTTL(ctx context.Context, userID string) (time.Duration, error) {
	ttl, err := l.store.TTL(ctx, redis.CartKey(userID))
	if err != nil {
		return 0, classify(err, "read cart ttl")
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// ClearCart removes the whole cart.
func (l *Layer) ClearCart(ctx context.Context, userID string) error {
	return l.Invalidate(ctx, redis.CartKey(userID))
}

// MarkConverting sets the converting marker and reports whether this caller won it.
func (l *Layer) MarkConverting(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	ok, err := l.store.SetNX(ctx, redis.CartConvertingKey(userID), time.Now().UTC().Format(time.RFC3339), ttl)
	if err != nil {
		return false, classify(err, "mark cart converting")
	}
	return ok, nil
}

// ClearConverting releases the converting marker.
func (l *Layer) ClearConverting(ctx context.Context, userID string) error {
	return l.Invalidate(ctx, redis.CartConvertingKey(userID))
}

// IsConverting reports whether a conversion is in flight for userID.
func (l *Layer) IsConverting(ctx context.Context, userID string) (bool, error) {
	ok, err := l.store.Exists(ctx, redis.CartConvertingKey(userID))
	if err != nil {
		return false, classify(err, "read converting marker")
	}
	return ok, nil
}

// Allow applies the fixed-window rate limit for a user action.
func (l *Layer) Allow(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	ok, _, err := l.store.FixedWindowAllow(ctx, userID, action, int64(limit), window)
	if err != nil {
		l.metrics.Error("rate", "incr")
		return false, classify(err, "rate limit")
	}
	return ok, nil
}

// Ping checks the backing store.
func (l *Layer) Ping(ctx context.Context) error {
	return classify(l.store.Ping(ctx), "ping redis")
}

func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
