package handler

import (
	"net/http"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

// StatsHandler serves a human-readable JSON snapshot of the in-process
// caches. Raw Prometheus metrics are available at /metrics.
type StatsHandler struct {
	interest *cache.InterestCache
	products *cache.ProductCache
	breaker  func() string
}

// NewStatsHandler builds the handler. breaker may be nil when no circuit
// breaker wraps the gateway.
func NewStatsHandler(interest *cache.InterestCache, products *cache.ProductCache, breaker func() string) *StatsHandler {
	return &StatsHandler{interest: interest, products: products, breaker: breaker}
}

// GetStats handles GET /api/v1/admin/stats
//
// @Summary  In-process cache snapshot
// @Tags     admin
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/admin/stats [get]
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if !auth.FromContext(r.Context()).Privileged() {
		mapError(w, domain.ErrUnauthorized)
		return
	}
	products, subs := h.interest.Size()
	body := map[string]any{
		"interest_cache": map[string]any{
			"initialized":   h.interest.Initialized(),
			"products":      products,
			"subscriptions": subs,
		},
		"product_cache": map[string]int{
			"entries": h.products.Len(),
		},
	}
	if h.breaker != nil {
		body["gateway_circuit"] = h.breaker()
	}
	respondJSON(w, http.StatusOK, body)
}
