package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"product-image-miner/internal/passes"
	"product-image-miner/internal/pkg/render"
)

type Handler struct {
	output string
	ledger string
}

type NewHandlerParams struct {
	fx.In

	Runner *passes.Runner `optional:"true"`
}

func NewHandler(p NewHandlerParams) *Handler {
	h := &Handler{}
	if p.Runner != nil {
		h.output = p.Runner.Output().Describe()
		h.ledger = p.Runner.Ledger().Describe()
	}
	return h
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/health", h.Handle)
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
	Ledger string `json:"ledger,omitempty"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	render.ChiJSON(w, http.StatusOK, healthResponse{OK: true, Output: h.output, Ledger: h.ledger})
}
