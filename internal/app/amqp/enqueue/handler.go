package enqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/config"
	"product-image-miner/internal/app/amqp/passworker"
	"product-image-miner/internal/pkg/amqpclient"
	"product-image-miner/internal/pkg/render"
	"product-image-miner/internal/router"
)

type publishFunc func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error

type Handler struct {
	cfg      *config.Config
	channel  *amqp.Channel
	logger   *zap.SugaredLogger
	validate *validator.Validate

	publish publishFunc
	newID   func() string
}

type NewHandlerParams struct {
	fx.In

	Cfg     *config.Config
	Channel *amqp.Channel `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	var publish publishFunc
	if p.Channel != nil {
		publish = p.Channel.PublishWithContext
	}

	return &Handler{
		cfg:      p.Cfg,
		channel:  p.Channel,
		logger:   p.Logger,
		validate: validator.New(),
		publish:  publish,
		newID:    uuid.NewString,
	}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/passes/enqueue", h.Handle)
}

type enqueueRequest struct {
	Pass string `json:"pass" validate:"required,oneof=batch retry"`
}

type enqueueResponse struct {
	OK      bool   `json:"ok"`
	EventID string `json:"event_id"`
	Pass    string `json:"pass"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Pass = strings.ToLower(strings.TrimSpace(req.Pass))
	if err := h.validate.Struct(req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "pass must be batch or retry")
		return
	}

	if h.cfg.RabbitMQ.URL == "" || h.publish == nil {
		render.ChiErr(w, http.StatusServiceUnavailable, "rabbitmq disabled")
		return
	}

	t := amqpclient.TopologyFromConfig(h.cfg)
	ex, routingKey := t.Exchange, t.RoutingKey

	now := time.Now().UTC()
	eventID := h.newID()

	body, err := json.Marshal(passworker.PassRequestedEnvelope{
		EventName: passworker.EventPassRequested,
		EventID:   eventID,
		TS:        now,
		Data:      passworker.PassRequestedEventData{Pass: req.Pass},
	})
	if err != nil {
		h.logger.Errorw("enqueue_marshal_failed", "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to encode message")
		return
	}

	if h.channel != nil && h.cfg.RabbitMQ.DeclareTopology {
		if err := h.channel.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			h.logger.Errorw("enqueue_exchange_declare_failed", "exchange", ex, "err", err)
			render.ChiErr(w, http.StatusBadGateway, fmt.Sprintf("rabbitmq exchange declare failed: %s", ex))
			return
		}
	}

	if err := h.publish(r.Context(), ex, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		MessageId:    eventID,
		Type:         passworker.EventPassRequested,
		Body:         body,
	}); err != nil {
		h.logger.Errorw(
			"enqueue_publish_failed",
			"exchange", ex,
			"routing_key", routingKey,
			"event_id", eventID,
			"pass", req.Pass,
			"err", err,
		)
		render.ChiErr(w, http.StatusBadGateway, "failed to publish message")
		return
	}

	h.logger.Infow("enqueue_published", "exchange", ex, "routing_key", routingKey, "event_id", eventID, "pass", req.Pass)
	render.ChiJSON(w, http.StatusAccepted, enqueueResponse{OK: true, EventID: eventID, Pass: req.Pass})
}

var _ router.Handler = (*Handler)(nil)
