package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/api/handler"
	apimw "github.com/innovativedesigner773/best-ecormmerce-sub001/internal/api/middleware"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/cache"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/service"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Subscriptions *service.SubscriptionService
	Restock       *service.RestockService
	ProductHooks  *service.ProductHooks
	Admin         *service.AdminService
	Interest      *cache.InterestCache
	Products      *cache.ProductCache
	Verifier      *auth.Verifier
	DB            handler.Pinger
	// BreakerState is optional; it reports the gateway circuit state.
	BreakerState func() string
	Gatherer     prometheus.Gatherer
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	sh := handler.NewSubscriptionHandler(d.Subscriptions, logger)
	ph := handler.NewProductHandler(d.Restock, d.ProductHooks, logger)
	ah := handler.NewAdminHandler(d.Admin, logger)
	st := handler.NewStatsHandler(d.Interest, d.Products, d.BreakerState)
	hh := handler.NewHealthHandler(d.DB, d.Interest.Initialized)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Storefront
		r.Post("/subscriptions", sh.Create)
		r.Get("/subscriptions/{id}", sh.Get)
		r.Delete("/subscriptions/{id}", sh.Delete)

		// Inventory and catalog events, posted by back-office systems
		r.Group(func(r chi.Router) {
			r.Use(apimw.Authenticated(d.Verifier.Middleware(handler.AuthError)))

			r.Post("/products/{id}/stock", ph.StockChanged)
			r.Post("/products/{id}/invalidate", ph.Invalidate)
		})

		// Operator console
		r.Route("/admin", func(r chi.Router) {
			r.Use(apimw.Authenticated(d.Verifier.Middleware(handler.AuthError)))

			r.Get("/queue/summary", ah.Summary)
			r.Get("/queue/items", ah.ListItems)
			r.Post("/queue/process", ah.Process)
			r.Post("/queue/retry-failed", ah.RetryFailed)
			r.Delete("/queue/failed", ah.ClearFailed)
			r.Post("/cache/refresh", ah.RefreshCache)
			r.Get("/stats", st.GetStats)
		})
	})

	return r
}
