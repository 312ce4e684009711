// Package httpapi exposes the rental core over JSON HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/safar/go-rental-store/internal/service"
)

type Options struct {
	// MetricsPath mounts the Prometheus handler when Gatherer is set.
	MetricsPath    string
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

type Handler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	log      zerolog.Logger
}

func NewHandler(carts *service.CartService, checkout *service.CheckoutService, orders *service.OrderService, log zerolog.Logger) *Handler {
	return &Handler{
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		log:      log.With().Str("component", "http").Logger(),
	}
}

func NewRouter(h *Handler, opts Options) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Get("/validate", h.validateCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
	})

	r.Post("/checkout", h.startCheckout)
	r.Post("/checkout/complete", h.completeCheckout)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/history", h.orderHistory)
			r.Get("/charges", h.orderCharges)
			r.Post("/approve", h.approveOrder)
			r.Post("/reject", h.rejectOrder)
			r.Post("/complete", h.completeRental)
			r.Post("/late-fee", h.applyLateFee)
			r.Post("/transition", h.transitionOrder)
		})
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
