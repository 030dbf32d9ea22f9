package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"product-image-miner/internal/router"
)

type Handler struct {
	h http.Handler
}

func NewHandler(reg *prometheus.Registry) *Handler {
	return &Handler{h: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/metrics", h.Handle)
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	h.h.ServeHTTP(w, r)
}

var _ router.Handler = (*Handler)(nil)
