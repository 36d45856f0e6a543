package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jupark12/docshift/models"
)

var (
	payloadCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docshift_payload_cache_hits_total",
		Help: "Download payloads served from the in-process cache.",
	})
	payloadCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docshift_payload_cache_misses_total",
		Help: "Download payloads read from the backing store.",
	})
)

// CachedStore keeps recently stored or downloaded payloads in an LRU with TTL
// in front of another Store. Payloads are write-once, so entries never go stale.
type CachedStore struct {
	Store
	payloads *expirable.LRU[int64, []byte]
}

// NewCachedStore wraps next with a payload cache of maxEntries entries.
func NewCachedStore(next Store, maxEntries int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:    next,
		payloads: expirable.NewLRU[int64, []byte](maxEntries, nil, ttl),
	}
}

// StorePayload stores through and caches the payload on success.
func (c *CachedStore) StorePayload(ctx context.Context, id int64, payload []byte) error {
	if err := c.Store.StorePayload(ctx, id, payload); err != nil {
		return err
	}
	c.payloads.Add(id, append([]byte(nil), payload...))
	return nil
}

// Complete completes through and caches the payload on success.
func (c *CachedStore) Complete(ctx context.Context, id int64, completion models.Completion, payload []byte) (*models.Document, error) {
	doc, err := c.Store.Complete(ctx, id, completion, payload)
	if err != nil {
		return nil, err
	}
	c.payloads.Add(id, append([]byte(nil), payload...))
	return doc, nil
}

// GetPayload returns a copy of the cached payload or loads it from the backing store.
func (c *CachedStore) GetPayload(ctx context.Context, id int64) ([]byte, error) {
	if payload, ok := c.payloads.Get(id); ok {
		payloadCacheHits.Inc()
		return append([]byte(nil), payload...), nil
	}
	payloadCacheMisses.Inc()

	payload, err := c.Store.GetPayload(ctx, id)
	if err != nil {
		return nil, err
	}
	c.payloads.Add(id, append([]byte(nil), payload...))
	return payload, nil
}
