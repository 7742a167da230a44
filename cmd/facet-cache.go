package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// facetCacheEntry is a complete value list for one facet under one query
// basis, or the fact that the facet had too many values to list
type facetCacheEntry struct {
	Values   []facetValueCount `json:"values,omitempty"`
	Exceeded bool              `json:"exceeded,omitempty"`
}

type facetValueCache interface {
	get(ctx context.Context, key string) (*facetCacheEntry, bool)
	set(ctx context.Context, key string, entry *facetCacheEntry)
	ping(ctx context.Context) error
	name() string
}

func newFacetValueCache(cfg serviceConfigCache) (facetValueCache, error) {
	ttlSecs := 300
	if cfg.TTL != "" {
		ttlSecs = integerWithMinimum(cfg.TTL, 1)
	}

	ttl := time.Duration(ttlSecs) * time.Second

	switch cfg.Type {
	case "", "memory":
		size := cfg.Size
		if size <= 0 {
			size = 1000
		}

		log.Printf("[CACHE] in-memory facet cache: size = %d, ttl = %s", size, ttl)

		return &memoryFacetCache{lru: expirable.NewLRU[string, *facetCacheEntry](size, nil, ttl)}, nil

	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, errors.New("redis facet cache requires an address")
		}

		log.Printf("[CACHE] redis facet cache: addr = %s, db = %d, ttl = %s", cfg.Redis.Addr, cfg.Redis.DB, ttl)

		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		return &redisFacetCache{client: client, prefix: cfg.Redis.Prefix, ttl: ttl}, nil

	case "none":
		log.Printf("[CACHE] facet cache disabled")

		return noFacetCache{}, nil
	}

	return nil, fmt.Errorf("unsupported facet cache type: [%s]", cfg.Type)
}

// in-process cache

type memoryFacetCache struct {
	lru *expirable.LRU[string, *facetCacheEntry]
}

func (m *memoryFacetCache) get(ctx context.Context, key string) (*facetCacheEntry, bool) {
	return m.lru.Get(key)
}

func (m *memoryFacetCache) set(ctx context.Context, key string, entry *facetCacheEntry) {
	m.lru.Add(key, entry)
}

func (m *memoryFacetCache) ping(ctx context.Context) error {
	return nil
}

func (m *memoryFacetCache) name() string {
	return "memory"
}

// shared cache; failures degrade to cache misses

type redisFacetCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (r *redisFacetCache) key(key string) string {
	return r.prefix + "facets:" + key
}

func (r *redisFacetCache) get(ctx context.Context, key string) (*facetCacheEntry, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()

	if err != nil {
		if errors.Is(err, redis.Nil) == false {
			clientFrom(ctx).err("[CACHE] redis get failed: %s", err.Error())
		}

		return nil, false
	}

	var entry facetCacheEntry

	if err := json.Unmarshal(data, &entry); err != nil {
		clientFrom(ctx).err("[CACHE] ignoring undecodable redis entry: %s", err.Error())
		return nil, false
	}

	return &entry, true
}

func (r *redisFacetCache) set(ctx context.Context, key string, entry *facetCacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		clientFrom(ctx).err("[CACHE] failed to encode entry: %s", err.Error())
		return
	}

	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		clientFrom(ctx).err("[CACHE] redis set failed: %s", err.Error())
	}
}

func (r *redisFacetCache) ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

func (r *redisFacetCache) name() string {
	return "redis"
}

type noFacetCache struct{}

func (noFacetCache) get(ctx context.Context, key string) (*facetCacheEntry, bool) {
	return nil, false
}

func (noFacetCache) set(ctx context.Context, key string, entry *facetCacheEntry) {}

func (noFacetCache) ping(ctx context.Context) error {
	return nil
}

func (noFacetCache) name() string {
	return "none"
}

// facetWarmer periodically refreshes the unfiltered value lists of the
// configured facets, which is what every new visitor asks for first
type facetWarmer struct {
	provider        *facetValueProvider
	facets          []string
	refreshInterval time.Duration
}

func newFacetWarmer(provider *facetValueProvider, facets []string, interval int) *facetWarmer {
	return &facetWarmer{
		provider:        provider,
		facets:          facets,
		refreshInterval: time.Duration(interval) * time.Second,
	}
}

func (f *facetWarmer) monitorFacets(ctx context.Context) {
	for {
		f.refreshFacets(ctx)

		log.Printf("[CACHE] refresh scheduled in %s", f.refreshInterval)

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.refreshInterval):
		}
	}
}

func (f *facetWarmer) refreshFacets(ctx context.Context) int {
	log.Printf("[CACHE] refreshing facet value lists...")

	refreshed := 0
	basis := newQueryState("", nil)

	for _, facet := range f.facets {
		if _, err := f.provider.refresh(ctx, facet, basis); err != nil {
			log.Printf("[CACHE] facet [%s] refresh error: %s", facet, err.Error())
			continue
		}

		refreshed++
	}

	return refreshed
}
