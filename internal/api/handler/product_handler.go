package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/innovativedesigner773/best-ecormmerce-sub001/internal/api/middleware"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/service"
)

// ProductHandler receives inventory and catalog events. Both routes need a
// privileged caller: a stock change fans out email and an invalidation
// forces catalog reads.
type ProductHandler struct {
	restock *service.RestockService
	hooks   *service.ProductHooks
	logger  *zap.Logger
}

func NewProductHandler(restock *service.RestockService, hooks *service.ProductHooks, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{restock: restock, hooks: hooks, logger: logger}
}

// StockChanged handles POST /api/v1/products/{id}/stock
//
// @Summary     Report a stock level change
// @Tags        products
// @Accept      json
// @Produce     json
// @Param       id    path      string                     true  "Product ID"
// @Param       body  body      domain.StockChangeRequest  true  "Old and new stock"
// @Success     200   {object}  domain.RestockResult
// @Failure     401   {object}  map[string]string
// @Failure     403   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/products/{id}/stock [post]
func (h *ProductHandler) StockChanged(w http.ResponseWriter, r *http.Request) {
	if !requirePrivileged(w, r) {
		return
	}
	var req domain.StockChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		mapError(w, err)
		return
	}

	productID := chi.URLParam(r, "id")
	res, err := h.restock.NotifyRestock(r.Context(), productID, *req.OldStock, *req.NewStock)
	if err != nil {
		h.logger.Error("restock trigger failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Invalidate handles POST /api/v1/products/{id}/invalidate, sent by the
// catalog after a product's name, price or image changes.
func (h *ProductHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if !requirePrivileged(w, r) {
		return
	}
	h.hooks.ProductUpdated(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func requirePrivileged(w http.ResponseWriter, r *http.Request) bool {
	id := auth.FromContext(r.Context())
	if id.Subject == "" || !id.Privileged() {
		mapError(w, domain.ErrUnauthorized)
		return false
	}
	return true
}
