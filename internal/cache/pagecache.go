package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Page is a rendered response kept by the page cache.
type Page struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// PageStore keeps rendered pages for a bounded time. Entries are never
// invalidated on writes; they only expire.
type PageStore interface {
	Get(ctx context.Context, key string) (*Page, bool, error)
	Set(ctx context.Context, key string, page *Page) error
	TTL() time.Duration
}

// NewPageStore returns a Redis-backed store when rdb is set, otherwise an in-process LRU.
func NewPageStore(rdb *redis.Client, size int, ttl time.Duration) PageStore {
	if rdb != nil {
		return NewRedisPageStore(rdb, ttl)
	}
	return NewMemoryPageStore(size, ttl)
}

// RedisPageStore shares cached pages across processes.
type RedisPageStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPageStore creates a Redis page store.
func NewRedisPageStore(rdb *redis.Client, ttl time.Duration) *RedisPageStore {
	return &RedisPageStore{rdb: rdb, ttl: ttl}
}

func (s *RedisPageStore) Get(ctx context.Context, key string) (*Page, bool, error) {
	raw, err := s.rdb.Get(ctx, PageKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		// Corrupt entries count as misses and get overwritten.
		return nil, false, nil
	}
	return &page, true, nil
}

func (s *RedisPageStore) Set(ctx context.Context, key string, page *Page) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, PageKey(key), raw, s.ttl).Err()
}

func (s *RedisPageStore) TTL() time.Duration { return s.ttl }

// MemoryPageStore is a bounded, expiring in-process page cache.
type MemoryPageStore struct {
	lru *expirable.LRU[string, *Page]
	ttl time.Duration
}

// NewMemoryPageStore creates an LRU page store holding at most size entries.
func NewMemoryPageStore(size int, ttl time.Duration) *MemoryPageStore {
	if size <= 0 {
		size = 512
	}
	return &MemoryPageStore{
		lru: expirable.NewLRU[string, *Page](size, nil, ttl),
		ttl: ttl,
	}
}

func (s *MemoryPageStore) Get(_ context.Context, key string) (*Page, bool, error) {
	page, ok := s.lru.Get(key)
	return page, ok, nil
}

func (s *MemoryPageStore) Set(_ context.Context, key string, page *Page) error {
	s.lru.Add(key, page)
	return nil
}

func (s *MemoryPageStore) TTL() time.Duration { return s.ttl }

// Len reports the number of live entries.
func (s *MemoryPageStore) Len() int { return s.lru.Len() }
