package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
)

// ProductHooks receives catalog change notifications.
type ProductHooks struct {
	products *cache.ProductCache
	interest *cache.InterestCache
	logger   *zap.Logger
}

func NewProductHooks(products *cache.ProductCache, interest *cache.InterestCache, logger *zap.Logger) *ProductHooks {
	return &ProductHooks{products: products, interest: interest, logger: logger}
}

// ProductUpdated drops the cached details so the next notification renders
// the current name, price and image.
func (h *ProductHooks) ProductUpdated(productID string) {
	h.products.Invalidate(productID)
	h.logger.Debug("product details invalidated", zap.String("product_id", productID))
}

// ProductSubscriptionsChanged resyncs one product's interest bucket after an
// out-of-band change to its subscriptions.
func (h *ProductHooks) ProductSubscriptionsChanged(ctx context.Context, productID string) error {
	return h.interest.RefreshProduct(ctx, productID)
}
