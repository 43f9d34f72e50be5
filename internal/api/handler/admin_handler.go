package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/service"
)

// AdminHandler serves the operator console's queue actions. Routes are
// mounted behind the auth middleware; role checks happen in the service.
type AdminHandler struct {
	svc    *service.AdminService
	logger *zap.Logger
}

func NewAdminHandler(svc *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// Summary handles GET /api/v1/admin/queue/summary
//
// @Summary  Queue counts per status
// @Tags     admin
// @Produce  json
// @Success  200  {object}  domain.StatusSummary
// @Router   /api/v1/admin/queue/summary [get]
func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// ListItems handles GET /api/v1/admin/queue/items?status=&page=&limit=
func (h *AdminHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := domain.QueueFilter{Page: page, Limit: limit}
	if s := q.Get("status"); s != "" {
		st := domain.Status(s)
		f.Status = &st
	}

	items, total, err := h.svc.ListItems(r.Context(), auth.FromContext(r.Context()), f)
	if err != nil {
		mapError(w, err)
		return
	}
	f.Normalize()
	if items == nil {
		items = []*domain.QueueItem{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": total,
		"page":  f.Page,
		"limit": f.Limit,
	})
}

// Process handles POST /api/v1/admin/queue/process. The per-item error list
// is only returned with ?errors=true.
//
// @Summary  Process one batch now
// @Tags     admin
// @Produce  json
// @Success  200  {object}  domain.ProcessResult
// @Failure  403  {object}  map[string]string
// @Failure  409  {object}  map[string]string  "A run is already in progress"
// @Router   /api/v1/admin/queue/process [post]
func (h *AdminHandler) Process(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	res, err := h.svc.ProcessNow(r.Context(), id)
	if err != nil {
		h.logger.Warn("manual queue processing rejected", zap.String("subject", id.Subject), zap.Error(err))
		mapError(w, err)
		return
	}
	if !queryBool(r, "errors") {
		res.Errors = nil
	}
	respondJSON(w, http.StatusOK, res)
}

// RetryFailed handles POST /api/v1/admin/queue/retry-failed. With
// ?force=true items that used every attempt are re-armed too. The response
// carries the processing pass that followed; its error list is included
// only with ?errors=true.
func (h *AdminHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RetryFailed(r.Context(), auth.FromContext(r.Context()), queryBool(r, "force"))
	if err != nil {
		mapError(w, err)
		return
	}
	if res.Processing != nil && !queryBool(r, "errors") {
		res.Processing.Errors = nil
	}
	respondJSON(w, http.StatusOK, res)
}

// ClearFailed handles DELETE /api/v1/admin/queue/failed
func (h *AdminHandler) ClearFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ClearFailed(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

// RefreshCache handles POST /api/v1/admin/cache/refresh[?product_id=]
func (h *AdminHandler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RefreshCache(r.Context(), auth.FromContext(r.Context()), r.URL.Query().Get("product_id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}
