package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/innovativedesigner773/best-ecormmerce-sub001/internal/api/middleware"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/service"
)

// SubscriptionHandler handles the storefront's notify-me endpoints.
type SubscriptionHandler struct {
	svc    *service.SubscriptionService
	logger *zap.Logger
}

func NewSubscriptionHandler(svc *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/subscriptions
//
// @Summary     Register restock interest
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Param       body  body      domain.CreateSubscriptionRequest  true  "Product and email"
// @Success     201   {object}  domain.Subscription
// @Failure     409   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/subscriptions [post]
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sub, err := h.svc.Subscribe(r.Context(), req)
	if err != nil {
		h.logger.Warn("subscribe failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("product_id", req.ProductID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

// Get handles GET /api/v1/subscriptions/{id}
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// Delete handles DELETE /api/v1/subscriptions/{id}
//
// @Summary  Withdraw restock interest
// @Tags     subscriptions
// @Param    id   path  string  true  "Subscription ID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/subscriptions/{id} [delete]
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unsubscribe(r.Context(), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
