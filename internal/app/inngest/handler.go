package inngest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/inngest/inngestgo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/config"
	pkginngest "product-image-miner/internal/pkg/inngest"
	"product-image-miner/internal/router"
)

// InngestHandler exposes the registered functions to the Inngest executor.
type InngestHandler struct {
	logger *zap.SugaredLogger
	path   string
	client inngestgo.Client
}

type NewInngestHandlerParams struct {
	fx.In

	Logger *zap.SugaredLogger
	Config *config.Config
	Client inngestgo.Client
}

func NewInngestHandler(p NewInngestHandlerParams) *InngestHandler {
	return &InngestHandler{
		logger: p.Logger,
		path:   pkginngest.ServePath(p.Config),
		client: p.Client,
	}
}

func (h *InngestHandler) RegisterRoute(r *chi.Mux) {
	r.Post(h.path, h.Handle)
	r.Put(h.path, h.Handle)
	r.Get(h.path, h.Handle)
}

func (h *InngestHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// Resolved per request so functions registered after construction are
	// served.
	h.client.Serve().ServeHTTP(w, r)
}

var _ router.Handler = (*InngestHandler)(nil)
