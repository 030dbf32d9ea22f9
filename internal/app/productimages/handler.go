package productimages

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/internal/output"
	"product-image-miner/internal/passes"
	"product-image-miner/internal/pkg/render"
	"product-image-miner/internal/product"
	"product-image-miner/internal/router"
)

// Store reads stored results by product id.
type Store interface {
	Get(ctx context.Context, id product.ID) (product.FetchResult, error)
}

type GetByIDHandler struct {
	store  Store
	logger *zap.SugaredLogger
}

type NewGetByIDHandlerParams struct {
	fx.In

	Runner *passes.Runner
	Logger *zap.SugaredLogger
}

func NewGetByIDHandler(p NewGetByIDHandlerParams) *GetByIDHandler {
	h := &GetByIDHandler{logger: p.Logger}
	// Only SQL backends can be read by id.
	if tbl, ok := p.Runner.Output().(*output.SQLTable); ok {
		h.store = tbl
	}
	return h
}

func (h *GetByIDHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/product-images/{id}", h.Handle)
	r.Get("/v1/product-images/{id}/image", h.HandleImage)
}

type getByIDResponse struct {
	ID          product.ID `json:"id"`
	ImageBase64 string     `json:"image_base64"`
	Bytes       int        `json:"bytes"`
}

func (h *GetByIDHandler) Handle(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookup(w, r)
	if !ok {
		return
	}
	img, err := res.DecodeImage()
	if err != nil {
		h.logger.Errorw("product_image_decode_failed", "id", res.ID.String(), "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "invalid stored image")
		return
	}
	render.ChiJSON(w, http.StatusOK, getByIDResponse{
		ID:          res.ID,
		ImageBase64: res.ImageBase64,
		Bytes:       len(img),
	})
}

// HandleImage serves the decoded image bytes with the stored media type.
func (h *GetByIDHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookup(w, r)
	if !ok {
		return
	}
	img, err := res.DecodeImage()
	if err != nil {
		h.logger.Errorw("product_image_decode_failed", "id", res.ID.String(), "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "invalid stored image")
		return
	}
	mediaType := strings.TrimPrefix(strings.SplitN(res.ImageBase64, ";", 2)[0], "data:")
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (h *GetByIDHandler) lookup(w http.ResponseWriter, r *http.Request) (product.FetchResult, bool) {
	id := product.ParseID(chi.URLParam(r, "id"))
	if id.IsZero() {
		render.ChiErr(w, http.StatusBadRequest, "missing id")
		return product.FetchResult{}, false
	}

	if h.store == nil {
		render.ChiErr(w, http.StatusServiceUnavailable, "product images are not stored in a database")
		return product.FetchResult{}, false
	}

	res, err := h.store.Get(r.Context(), id)
	if errors.Is(err, output.ErrNotFound) {
		render.ChiErr(w, http.StatusNotFound, "not found")
		return product.FetchResult{}, false
	}
	if err != nil {
		h.logger.Errorw("product_image_get_by_id_failed", "id", id.String(), "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to fetch product image")
		return product.FetchResult{}, false
	}
	return res, true
}

var _ router.Handler = (*GetByIDHandler)(nil)
