// Package cachetest provides an in-memory cache.Store for service tests.
package cachetest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
)

// Store keeps strings, hashes and counters in memory. TTLs are recorded but
// never expire on their own; tests call Expire or Del to simulate eviction.
type Store struct {
	mu      sync.Mutex
	values  map[string]string
	hashes  map[string]map[string]string
	counts  map[string]int64
	ttls    map[string]time.Duration
	Gets    int
	Sets    int
	GetErr  error
	SetErr  error
	DelErr  error
	HashErr error
}

func New() *Store {
	return &Store{
		values: make(map[string]string),
		hashes: make(map[string]map[string]string),
		counts: make(map[string]int64),
		ttls:   make(map[string]time.Duration),
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	if s.GetErr != nil {
		return "", s.GetErr
	}
	v, ok := s.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sets++
	if s.SetErr != nil {
		return s.SetErr
	}
	s.values[key] = fmt.Sprint(value)
	s.setTTL(key, ttl)
	return nil
}

func (s *Store) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return false, s.SetErr
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = fmt.Sprint(value)
	s.setTTL(key, ttl)
	return true, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DelErr != nil {
		return s.DelErr
	}
	for _, key := range keys {
		s.delete(key)
	}
	return nil
}

func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DelErr != nil {
		return 0, s.DelErr
	}
	var n int64
	for _, key := range s.keysLocked() {
		if strings.HasPrefix(key, prefix) {
			s.delete(key)
			n++
		}
	}
	return n, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists(key), nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists(key) {
		s.setTTL(key, ttl)
	}
	return nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(key) {
		return -2, nil
	}
	ttl, ok := s.ttls[key]
	if !ok {
		return -1, nil
	}
	return ttl, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HashErr != nil {
		return nil, s.HashErr
	}
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) HSet(ctx context.Context, key, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HashErr != nil {
		return s.HashErr
	}
	s.hash(key)[field] = fmt.Sprint(value)
	return nil
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HashErr != nil {
		return 0, s.HashErr
	}
	h := s.hash(key)
	current, _ := strconv.ParseInt(h[field], 10, 64)
	current += delta
	h[field] = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HashErr != nil {
		return 0, s.HashErr
	}
	h := s.hashes[key]
	var n int64
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			n++
		}
	}
	if h != nil && len(h) == 0 {
		s.delete(key)
	}
	return n, nil
}

func (s *Store) HLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.hashes[key])), nil
}

func (s *Store) FixedWindowAllow(ctx context.Context, userID, action string, limit int64, window time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := redis.RateLimitKey(userID, action)
	s.counts[key]++
	if s.counts[key] == 1 {
		s.setTTL(key, window)
	}
	return s.counts[key] <= limit, s.counts[key], nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Put seeds a raw string value.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Value returns a raw string value.
func (s *Store) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Hash returns a copy of a hash.
func (s *Store) Hash(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out
}

// Has reports whether any value, hash or counter lives under key.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists(key)
}

// TTLOf returns the last TTL recorded for key.
func (s *Store) TTLOf(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Keys returns every stored key in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked()
}

func (s *Store) keysLocked() []string {
	keys := make([]string, 0, len(s.values)+len(s.hashes)+len(s.counts))
	for k := range s.values {
		keys = append(keys, k)
	}
	for k := range s.hashes {
		keys = append(keys, k)
	}
	for k := range s.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) exists(key string) bool {
	if _, ok := s.values[key]; ok {
		return true
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	_, ok := s.counts[key]
	return ok
}

func (s *Store) delete(key string) {
	delete(s.values, key)
	delete(s.hashes, key)
	delete(s.counts, key)
	delete(s.ttls, key)
}

func (s *Store) setTTL(key string, ttl time.Duration) {
	if ttl > 0 {
		s.ttls[key] = ttl
	}
}

func (s *Store) hash(key string) map[string]string {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	return h
}
