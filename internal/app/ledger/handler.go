package ledger

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/internal/ledger"
	"product-image-miner/internal/passes"
	"product-image-miner/internal/pkg/render"
	"product-image-miner/internal/product"
	"product-image-miner/internal/router"
)

// Handler reports the ids a retry pass would revisit.
type Handler struct {
	store  ledger.Store
	logger *zap.SugaredLogger
}

type NewHandlerParams struct {
	fx.In

	Runner *passes.Runner
	Logger *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	return &Handler{store: p.Runner.Ledger(), logger: p.Logger}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/ledger", h.Handle)
}

type ledgerResponse struct {
	Ledger    string       `json:"ledger"`
	Count     int          `json:"count"`
	FailedIDs []product.ID `json:"failed_ids"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.Load(r.Context())
	if err != nil {
		h.logger.Errorw("ledger_load_failed", "ledger", h.store.Describe(), "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	if ids == nil {
		ids = []product.ID{}
	}
	render.ChiJSON(w, http.StatusOK, ledgerResponse{
		Ledger:    h.store.Describe(),
		Count:     len(ids),
		FailedIDs: ids,
	})
}

var _ router.Handler = (*Handler)(nil)
