package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/repository"
)

// ProductCache memoizes product details with no expiry. Freshness relies on
// product editors calling Invalidate after every change.
type ProductCache struct {
	repo repository.ProductRepository

	mu      sync.RWMutex
	entries map[string]domain.ProductDetails
	// gen is bumped on Invalidate. Loads are coalesced per (id, gen), so a
	// Get after Invalidate never joins a load that read before it, and a
	// load that started before the invalidation does not store what it read.
	gen map[string]uint64

	loads singleflight.Group
}

func NewProductCache(repo repository.ProductRepository) *ProductCache {
	return &ProductCache{
		repo:    repo,
		entries: make(map[string]domain.ProductDetails),
		gen:     make(map[string]uint64),
	}
}

// Get returns the product's details, loading them on first miss. A product
// missing from the store yields ok=false and no error; it is not memoized.
func (c *ProductCache) Get(ctx context.Context, productID string) (domain.ProductDetails, bool, error) {
	c.mu.RLock()
	p, ok := c.entries[productID]
	startGen := c.gen[productID]
	c.mu.RUnlock()
	if ok {
		return p, true, nil
	}

	key := productID + "#" + strconv.FormatUint(startGen, 10)
	v, err, _ := c.loads.Do(key, func() (any, error) {
		return c.repo.GetProductDetails(ctx, productID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ProductDetails{}, false, nil
	}
	if err != nil {
		return domain.ProductDetails{}, false, fmt.Errorf("load product %s: %w", productID, err)
	}

	details := *v.(*domain.ProductDetails)
	c.mu.Lock()
	if c.gen[productID] == startGen {
		c.entries[productID] = details
	}
	c.mu.Unlock()
	return details, true, nil
}

// Invalidate drops the cached entry for productID.
func (c *ProductCache) Invalidate(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, productID)
	c.gen[productID]++
}

func (c *ProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
