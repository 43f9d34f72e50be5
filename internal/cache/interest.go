// Package cache holds the in-process indexes the restock pipeline reads
// instead of the store: pending subscriptions by product, and product
// details used to render notifications.
//
// Neither cache is transactional with the store. A crash between a store
// write and the matching cache update leaves the cache stale until the next
// RefreshAll/RefreshProduct; the store stays the source of truth.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

const initKey = "initialize"

// InterestCache indexes undelivered subscriptions by product id.
type InterestCache struct {
	repo   repository.SubscriptionRepository
	logger *zap.Logger

	mu      sync.RWMutex
	buckets map[string][]domain.Subscription
	loaded  bool
	// started numbers each full load as it reads the store; applied is the
	// number of the load whose result is installed. A load that read before
	// a newer one never overwrites it.
	started uint64
	applied uint64

	inits singleflight.Group
}

func NewInterestCache(repo repository.SubscriptionRepository, logger *zap.Logger) *InterestCache {
	return &InterestCache{
		repo:    repo,
		logger:  logger,
		buckets: make(map[string][]domain.Subscription),
	}
}

// Initialize loads every pending subscription once. Concurrent callers share
// the in-flight load; later calls are no-ops once a load has succeeded.
func (c *InterestCache) Initialize(ctx context.Context) error {
	if c.Initialized() {
		return nil
	}
	// The load outlives the first caller's cancellation since others may be
	// waiting on the same result.
	_, err, _ := c.inits.Do(initKey, func() (any, error) {
		if c.Initialized() {
			return nil, nil
		}
		return nil, c.load(context.WithoutCancel(ctx))
	})
	return err
}

// Initialized reports whether a full load has completed.
func (c *InterestCache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// RefreshAll reloads the whole index from the store. Every call reads the
// store itself, so the index reflects all writes committed before the call.
// Incremental updates that land while the load is in flight may be
// overwritten; the next refresh repairs them.
func (c *InterestCache) RefreshAll(ctx context.Context) error {
	return c.load(ctx)
}

func (c *InterestCache) load(ctx context.Context) error {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.mu.Unlock()

	subs, err := c.repo.ListAllPending(ctx)
	if err != nil {
		c.logger.Error("interest cache load failed, keeping previous state", zap.Error(err))
		return fmt.Errorf("load interest cache: %w", err)
	}

	buckets := make(map[string][]domain.Subscription)
	for _, s := range subs {
		if s.Delivered {
			continue
		}
		buckets[s.ProductID] = append(buckets[s.ProductID], *s)
	}
	for _, bucket := range buckets {
		sortByCreated(bucket)
	}

	c.mu.Lock()
	stale := seq < c.applied
	if !stale {
		c.buckets = buckets
		c.applied = seq
		c.loaded = true
	}
	c.mu.Unlock()

	if stale {
		c.logger.Debug("discarding interest cache load overtaken by a newer one")
		return nil
	}
	c.logger.Info("interest cache loaded",
		zap.Int("products", len(buckets)),
		zap.Int("subscriptions", len(subs)),
	)
	return nil
}

// Lookup returns a copy of the cached subscriptions for productID, oldest
// first. It never touches the store.
func (c *InterestCache) Lookup(productID string) []domain.Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bucket := c.buckets[productID]
	out := make([]domain.Subscription, len(bucket))
	copy(out, bucket)
	return out
}

func (c *InterestCache) Has(productID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.buckets[productID]
	return ok
}

// Add indexes a new pending subscription. Delivered subscriptions and ids
// already present are ignored.
func (c *InterestCache) Add(s domain.Subscription) {
	if s.Delivered {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.buckets[s.ProductID]
	for _, existing := range bucket {
		if existing.ID == s.ID {
			return
		}
	}
	bucket = append(bucket, s)
	sortByCreated(bucket)
	c.buckets[s.ProductID] = bucket
}

// Remove drops a subscription and reports whether it was cached. With an
// empty productID every bucket is scanned; callers that know the product
// should pass it.
func (c *InterestCache) Remove(subscriptionID, productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if productID != "" {
		return c.removeFromLocked(productID, subscriptionID)
	}
	for pid := range c.buckets {
		if c.removeFromLocked(pid, subscriptionID) {
			return true
		}
	}
	return false
}

func (c *InterestCache) removeFromLocked(productID, subscriptionID string) bool {
	bucket, ok := c.buckets[productID]
	if !ok {
		return false
	}
	for i, s := range bucket {
		if s.ID != subscriptionID {
			continue
		}
		bucket = append(bucket[:i:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(c.buckets, productID)
		} else {
			c.buckets[productID] = bucket
		}
		return true
	}
	return false
}

// RefreshProduct replaces one product's bucket with the store's current
// pending list.
func (c *InterestCache) RefreshProduct(ctx context.Context, productID string) error {
	subs, err := c.repo.ListPending(ctx, productID)
	if err != nil {
		c.logger.Error("interest cache product refresh failed, keeping previous state",
			zap.String("product_id", productID), zap.Error(err))
		return fmt.Errorf("refresh product %s: %w", productID, err)
	}

	bucket := make([]domain.Subscription, 0, len(subs))
	for _, s := range subs {
		if !s.Delivered {
			bucket = append(bucket, *s)
		}
	}
	sortByCreated(bucket)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(bucket) == 0 {
		delete(c.buckets, productID)
		return nil
	}
	c.buckets[productID] = bucket
	return nil
}

// Size returns the number of cached products and subscriptions.
func (c *InterestCache) Size() (products, subscriptions int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, bucket := range c.buckets {
		subscriptions += len(bucket)
	}
	return len(c.buckets), subscriptions
}

func sortByCreated(subs []domain.Subscription) {
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
}
