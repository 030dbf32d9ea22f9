package passworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/config"
	"product-image-miner/internal/pkg/amqpclient"
)

var ErrHandlerMissing = errors.New("passworker handler missing")

type Handler interface {
	Handle(ctx context.Context, msg PassRequestedEnvelope) error
}

type Consumer struct {
	cfg     *config.Config
	channel *amqp.Channel
	handler Handler
	logger  *zap.SugaredLogger

	consumerTag string
	cancel      context.CancelFunc
	done        chan struct{}
}

type NewConsumerParams struct {
	fx.In

	Config  *config.Config
	Channel *amqp.Channel `optional:"true"`
	Handler Handler       `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewConsumer(p NewConsumerParams) *Consumer {
	h := p.Handler
	if h == nil {
		h = missingHandler{}
	}

	return &Consumer{
		cfg:         p.Config,
		channel:     p.Channel,
		handler:     h,
		logger:      p.Logger,
		consumerTag: "passworker",
	}
}

// Start declares the topology and begins consuming. Deliveries are handled
// on a context owned by the consumer, so a pass outlives the start hook and
// is cancelled by Stop.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg == nil || strings.TrimSpace(c.cfg.RabbitMQ.URL) == "" || c.channel == nil {
		c.logger.Infow("passworker_disabled", "reason", "missing rabbitmq config or channel")
		return nil
	}

	if c.cfg.RabbitMQ.DeclareTopology {
		if err := c.declareTopology(ctx); err != nil {
			return err
		}
	}

	prefetch := c.cfg.RabbitMQ.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	queue := amqpclient.TopologyFromConfig(c.cfg).Queue
	deliveries, err := c.channel.Consume(
		queue,
		c.consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	c.logger.Infow("passworker_started", "queue", queue, "prefetch", prefetch)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.handleDelivery(runCtx, d)
			}
		}
	}()

	return nil
}

// Stop cancels any running pass and waits for its delivery to settle.
func (c *Consumer) Stop(ctx context.Context) error {
	if c.channel == nil || c.cancel == nil {
		return nil
	}
	_ = c.channel.Cancel(c.consumerTag, false)
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) declareTopology(ctx context.Context) error {
	_ = ctx

	t := amqpclient.TopologyFromConfig(c.cfg)
	ex, queue, routingKey := t.Exchange, t.Queue, t.RoutingKey

	dlx := ex + ".dlx"
	dlq := queue + ".dlq"

	if err := c.channel.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare %q: %w", ex, err)
	}
	if err := c.channel.ExchangeDeclare(dlx, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlx exchange declare %q: %w", dlx, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": dlx,
	}
	if _, err := c.channel.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("rabbitmq queue declare %q: %w", queue, err)
	}
	if _, err := c.channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq declare %q: %w", dlq, err)
	}

	if err := c.channel.QueueBind(queue, routingKey, ex, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue bind queue=%q key=%q ex=%q: %w", queue, routingKey, ex, err)
	}
	if err := c.channel.QueueBind(dlq, routingKey, dlx, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq bind queue=%q key=%q ex=%q: %w", dlq, routingKey, dlx, err)
	}

	c.logger.Infow(
		"passworker_topology_declared",
		"exchange", ex,
		"queue", queue,
		"routing_key", routingKey,
		"dlx", dlx,
		"dlq", dlq,
	)

	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	eventID := strings.TrimSpace(d.MessageId)
	if eventID == "" {
		eventID = strings.TrimSpace(d.CorrelationId)
	}

	var msg PassRequestedEnvelope
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Errorw("passworker_invalid_json", "err", err, "message_id", eventID)
		_ = d.Reject(false)
		return
	}

	if strings.TrimSpace(msg.EventID) == "" && eventID != "" {
		msg.EventID = eventID
	}
	if strings.TrimSpace(msg.EventID) == "" {
		c.logger.Errorw("passworker_missing_event_id", "message_id", eventID, "event_name", msg.EventName)
		_ = d.Reject(false)
		return
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		// Shutdown interrupted the pass; hand the request back to the queue.
		if ctx.Err() != nil {
			c.logger.Warnw("passworker_requeued", "event_id", msg.EventID, "err", err)
			_ = d.Nack(false, true)
			return
		}
		c.logger.Errorw("passworker_handle_failed",
			"err", err,
			"event_id", msg.EventID,
			"event_name", msg.EventName,
		)
		_ = d.Reject(false)
		return
	}

	_ = d.Ack(false)
}

type missingHandler struct{}

func (missingHandler) Handle(ctx context.Context, msg PassRequestedEnvelope) error {
	_ = ctx
	_ = msg
	return ErrHandlerMissing
}
