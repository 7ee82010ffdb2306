// Package api exposes the storefront over HTTP.
package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-grocery-store/internal/analytics"
	"github.com/safar/go-grocery-store/internal/cache"
	"github.com/safar/go-grocery-store/internal/inventory"
	"github.com/safar/go-grocery-store/internal/orders"
	"github.com/safar/go-grocery-store/internal/users"
	"github.com/sirupsen/logrus"
)

const productCacheMaxAge = time.Hour

type Config struct {
	DB             *sql.DB
	Orders         *orders.Service
	Users          *users.Service
	Analytics      *analytics.Service
	Inventory      *inventory.Service
	Cache          cache.ResponseCache
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	Log            logrus.FieldLogger
	// LookupUser resolves X-User-ID. Defaults to the users service.
	LookupUser UserLookup
}

type Handler struct {
	db        *sql.DB
	orders    *orders.Service
	users     *users.Service
	analytics *analytics.Service
	inventory *inventory.Service
	cache     *responseCache
	log       logrus.FieldLogger
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		db:        cfg.DB,
		orders:    cfg.Orders,
		users:     cfg.Users,
		analytics: cfg.Analytics,
		inventory: cfg.Inventory,
		cache:     newResponseCache(cfg.Cache, cfg.CacheTTL, requestTimeout(cfg), cfg.Log),
		log:       cfg.Log,
	}
}

func requestTimeout(cfg Config) time.Duration {
	if cfg.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return cfg.RequestTimeout
}

// NewRouter wires every route behind the shared middleware stack.
func NewRouter(cfg Config) http.Handler {
	h := NewHandler(cfg)

	timeout := requestTimeout(cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))
	lookup := cfg.LookupUser
	if lookup == nil {
		lookup = h.users.Get
	}
	r.Use(identify(lookup, cfg.Log))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.With(requireUser).Get("/recommendations", h.Recommendations)

			r.Group(func(r chi.Router) {
				r.Use(cacheControl(productCacheMaxAge))
				r.Use(h.cache.Middleware)
				r.Get("/", h.ListProducts)
				r.Get("/{id}", h.GetProduct)
			})

			r.With(requireUser).Post("/{id}/reviews", h.AddReview)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.Register)
			r.With(requireUser).Get("/me", h.Me)
			r.With(requireAdmin).Get("/", h.ListUsers)
			r.With(requireAdmin).Get("/{id}", h.GetUser)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/", h.PlaceOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Get("/{id}/invoice", h.Invoice)
			r.Post("/{id}/payment-verify", h.VerifyPayment)
			r.With(requireAdmin).Put("/{id}/status", h.UpdateStatus)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/", h.Dashboard)
			r.Get("/report", h.Report)
			r.Get("/customers", h.Customers)
			r.Get("/products", h.ProductAnalytics)
			r.Get("/stockouts", h.Stockouts)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/report", h.InventoryReport)
			r.Get("/{id}/reorder-point", h.ReorderPoint)
			r.Put("/{id}/stock", h.AdjustStock)
		})

		r.With(requireUser).Post("/sustainability/report", h.SustainabilityReport)
	})

	return r
}

// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.log.WithError(err).Warn("health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} URL parameter, answering 400 itself when it is not
// a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondValidation(w, []FieldError{{Field: "id", Message: "id must be a positive integer"}})
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
