package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/artisanmarket-backend/internal/cache/cachetest"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
)

type payload struct {
	IDs []string `json:"ids"`
}

func newLayer(t *testing.T, store *cachetest.Store) *Layer {
	t.Helper()
	layer, err := NewLayer(store, logger.Nop(), metrics.NewCacheMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("new layer: %v", err)
	}
	return layer
}

func TestReadThroughCachesComputedValue(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (payload, error) {
		calls++
		return payload{IDs: []string{"P001", "P002"}}, nil
	}

	first, hit, err := ReadThrough(ctx, layer, "search:abc", FixedTTL[payload](time.Hour), compute)
	if err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
	second, hit, err := ReadThrough(ctx, layer, "search:abc", FixedTTL[payload](time.Hour), compute)
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Fatalf("compute should run once, ran %d times", calls)
	}
	if len(second.IDs) != 2 || second.IDs[0] != first.IDs[0] {
		t.Fatalf("cached value differs: %+v vs %+v", second, first)
	}
	if store.TTLOf("search:abc") != time.Hour {
		t.Fatalf("expected 1h ttl got %s", store.TTLOf("search:abc"))
	}
}

func TestReadThroughValueDependentTTL(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	policy := func(v payload) time.Duration {
		if len(v.IDs) == 0 {
			return 5 * time.Minute
		}
		return time.Hour
	}

	_, _, err := ReadThrough(context.Background(), layer, "search:empty", policy, func(context.Context) (payload, error) {
		return payload{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.TTLOf("search:empty") != 5*time.Minute {
		t.Fatalf("empty result should use the negative ttl, got %s", store.TTLOf("search:empty"))
	}
}

func TestReadThroughDegradesOnCacheFailure(t *testing.T) {
	store := cachetest.New()
	store.GetErr = errors.New("connection refused")
	store.SetErr = errors.New("connection refused")
	layer := newLayer(t, store)

	got, hit, err := ReadThrough(context.Background(), layer, "product:P001", FixedTTL[payload](time.Hour), func(context.Context) (payload, error) {
		return payload{IDs: []string{"P001"}}, nil
	})
	if err != nil {
		t.Fatalf("cache failure must not fail the caller: %v", err)
	}
	if hit || len(got.IDs) != 1 {
		t.Fatalf("expected computed value, got %+v hit=%v", got, hit)
	}
}

func TestReadThroughRecomputesUndecodableEntry(t *testing.T) {
	store := cachetest.New()
	store.Put("reco:similar:P001:5", "{not json")
	layer := newLayer(t, store)

	got, hit, err := ReadThrough(context.Background(), layer, "reco:similar:P001:5", FixedTTL[payload](time.Minute), func(context.Context) (payload, error) {
		return payload{IDs: []string{"P002"}}, nil
	})
	if err != nil || hit {
		t.Fatalf("expected recompute, got hit=%v err=%v", hit, err)
	}
	if got.IDs[0] != "P002" {
		t.Fatalf("unexpected value %+v", got)
	}
	if raw, _ := store.Value("reco:similar:P001:5"); raw != `{"ids":["P002"]}` {
		t.Fatalf("entry should be rewritten, got %s", raw)
	}
}

func TestReadThroughPropagatesComputeError(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	boom := pkgerrors.New(pkgerrors.CodeNotFound, "missing")

	_, _, err := ReadThrough(context.Background(), layer, "product:P404", FixedTTL[payload](time.Hour), func(context.Context) (payload, error) {
		return payload{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if store.Has("product:P404") {
		t.Fatalf("errors must not be cached")
	}
}

func TestInvalidate(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	ctx := context.Background()
	store.Put("product:P001", "{}")
	store.Put("search:a", "[]")
	store.Put("search:b", "[]")

	if err := layer.Invalidate(ctx, "product:P001"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if store.Has("product:P001") {
		t.Fatalf("product key should be gone")
	}
	n, err := layer.InvalidatePrefix(ctx, redis.SearchPrefix())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 search keys removed, got %d err=%v", n, err)
	}

	store.DelErr = errors.New("connection reset")
	err = layer.Invalidate(ctx, "cart:U001")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error got %v", err)
	}
}

func TestCartPrimitives(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	ctx := context.Background()

	if qty, err := layer.CartIncr(ctx, "U001", "P001", 2); err != nil || qty != 2 {
		t.Fatalf("expected 2 got %d err=%v", qty, err)
	}
	if err := layer.CartSet(ctx, "U001", "P003", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := layer.CartTouch(ctx, "U001", 24*time.Hour); err != nil {
		t.Fatalf("touch: %v", err)
	}
	items, err := layer.CartItems(ctx, "U001")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if items["P001"] != 2 || items["P003"] != 1 {
		t.Fatalf("unexpected items %v", items)
	}
	ttl, err := layer.CartTTL(ctx, "U001")
	if err != nil || ttl != 24*time.Hour {
		t.Fatalf("expected 24h ttl got %s err=%v", ttl, err)
	}

	if remaining, err := layer.CartRemove(ctx, "U001", "P001"); err != nil || remaining != 1 {
		t.Fatalf("expected one line left got %d err=%v", remaining, err)
	}
	if remaining, err := layer.CartRemove(ctx, "U001", "P003"); err != nil || remaining != 0 {
		t.Fatalf("expected empty cart got %d err=%v", remaining, err)
	}
	if store.Has(redis.CartKey("U001")) {
		t.Fatalf("empty cart key should be deleted")
	}
	if ttl, _ := layer.CartTTL(ctx, "U001"); ttl != 0 {
		t.Fatalf("missing cart should report zero ttl, got %s", ttl)
	}
}

func TestCartItemsRejectsCorruptQuantity(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	_ = store.HSet(context.Background(), redis.CartKey("U001"), "P001", "two")

	_, err := layer.CartItems(context.Background(), "U001")
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error got %v", err)
	}
}

func TestConvertingMarker(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	ctx := context.Background()

	won, err := layer.MarkConverting(ctx, "U001", 2*time.Minute)
	if err != nil || !won {
		t.Fatalf("first marker should win, got %v err=%v", won, err)
	}
	won, err = layer.MarkConverting(ctx, "U001", 2*time.Minute)
	if err != nil || won {
		t.Fatalf("second marker should lose, got %v err=%v", won, err)
	}
	if on, _ := layer.IsConverting(ctx, "U001"); !on {
		t.Fatalf("expected converting")
	}
	if store.TTLOf(redis.CartConvertingKey("U001")) != 2*time.Minute {
		t.Fatalf("marker should carry its ttl")
	}
	if err := layer.ClearConverting(ctx, "U001"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if on, _ := layer.IsConverting(ctx, "U001"); on {
		t.Fatalf("expected marker cleared")
	}
}

func TestAllow(t *testing.T) {
	store := cachetest.New()
	layer := newLayer(t, store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := layer.Allow(ctx, "U001", "search", 2, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d should pass, got %v err=%v", i, ok, err)
		}
	}
	if ok, _ := layer.Allow(ctx, "U001", "search", 2, time.Minute); ok {
		t.Fatalf("third request should be limited")
	}
	if ok, _ := layer.Allow(ctx, "U002", "search", 2, time.Minute); !ok {
		t.Fatalf("limits are per user")
	}
}

func TestClassify(t *testing.T) {
	if !pkgerrors.IsCode(classify(context.DeadlineExceeded, "x"), pkgerrors.CodeTimeout) {
		t.Fatalf("deadline should map to timeout")
	}
	if !pkgerrors.IsRetryable(classify(errors.New("dial tcp: refused"), "x")) {
		t.Fatalf("redis failures should be retryable")
	}
	if classify(nil, "x") != nil {
		t.Fatalf("nil stays nil")
	}
}

// addAfterCount simulates another request adding a line right after the
// removal counted the remaining fields.
type addAfterCount struct {
	*cachetest.Store
	key   string
	field string
	qty   int64
}

func (s *addAfterCount) HLen(ctx context.Context, key string) (int64, error) {
	n, err := s.Store.HLen(ctx, key)
	if err != nil {
		return n, err
	}
	if _, err := s.Store.HIncrBy(ctx, s.key, s.field, s.qty); err != nil {
		return n, err
	}
	return n, nil
}

func TestCartRemoveKeepsConcurrentAdd(t *testing.T) {
	inner := cachetest.New()
	key := redis.CartKey("U001")
	store := &addAfterCount{Store: inner, key: key, field: "P002", qty: 3}
	layer, err := NewLayer(store, logger.Nop(), metrics.NewCacheMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("new layer: %v", err)
	}
	ctx := context.Background()
	if _, err := inner.HIncrBy(ctx, key, "P001", 1); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	remaining, err := layer.CartRemove(ctx, "U001", "P001")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected zero lines counted got %d", remaining)
	}
	if got := inner.Hash(key); got["P002"] != "3" || len(got) != 1 {
		t.Fatalf("concurrent add was lost, cart is %v", got)
	}
}
