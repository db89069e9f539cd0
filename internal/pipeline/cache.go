package pipeline

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheEntry is a previously computed correction.
type CacheEntry struct {
	Corrected    string
	LanguageHint string
	Latency      time.Duration
}

// ResultCache maps normalized text plus a language hint to a previously
// computed correction. Capacity-bounded with least-recently-used eviction;
// entries older than the TTL are treated as absent on read. A hit refreshes
// recency without resetting the entry's age.
//
// Accessed only by the pipeline goroutine.
type ResultCache struct {
	lru *expirable.LRU[string, CacheEntry]
}

func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size < 1 {
		size = 1
	}
	return &ResultCache{
		lru: expirable.NewLRU[string, CacheEntry](size, nil, ttl),
	}
}

func (c *ResultCache) Get(text, langHint string) (CacheEntry, bool) {
	return c.lru.Get(cacheKey(text, langHint))
}

func (c *ResultCache) Put(text, langHint string, entry CacheEntry) {
	c.lru.Add(cacheKey(text, langHint), entry)
}

func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// cacheKey joins the normalized text with the language hint so distinct
// hints never collide.
func cacheKey(text, langHint string) string {
	if langHint == "" {
		langHint = "auto"
	}
	return normalizeText(text) + "||" + langHint
}
