package amqpclient

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/config"
)

const (
	DefaultExchange   = "events"
	DefaultQueue      = "images.pass.requested.v1"
	DefaultRoutingKey = "images.pass.requested.v1"
)

// Topology is the exchange, queue and routing key for pass requests, with
// defaults filled in.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

func TopologyFromConfig(cfg *config.Config) Topology {
	t := Topology{
		Exchange:   DefaultExchange,
		Queue:      DefaultQueue,
		RoutingKey: DefaultRoutingKey,
	}
	if cfg == nil {
		return t
	}
	if v := strings.TrimSpace(cfg.RabbitMQ.Exchange); v != "" {
		t.Exchange = v
	}
	if v := strings.TrimSpace(cfg.RabbitMQ.Queue); v != "" {
		t.Queue = v
	}
	if v := strings.TrimSpace(cfg.RabbitMQ.RoutingKey); v != "" {
		t.RoutingKey = v
	}
	return t
}

type NewAMQPParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.SugaredLogger
}

type AMQPOut struct {
	fx.Out

	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewAMQP dials RabbitMQ when RABBITMQ_URL is set and returns nil handles
// otherwise.
func NewAMQP(p NewAMQPParams) (AMQPOut, error) {
	url := ""
	if p.Config != nil {
		url = strings.TrimSpace(p.Config.RabbitMQ.URL)
	}
	if url == "" {
		p.Logger.Infow("rabbitmq_disabled", "reason", "missing RABBITMQ_URL")
		return AMQPOut{}, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return AMQPOut{}, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return AMQPOut{}, fmt.Errorf("rabbitmq channel: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		// Receives nil on a graceful Close.
		if err := <-closed; err != nil {
			p.Logger.Errorw("rabbitmq_connection_lost", "code", err.Code, "reason", err.Reason)
		}
	}()

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ch.Close()
			_ = conn.Close()
			return nil
		},
	})

	t := TopologyFromConfig(p.Config)
	p.Logger.Infow(
		"rabbitmq_enabled",
		"exchange", t.Exchange,
		"queue", t.Queue,
		"routing_key", t.RoutingKey,
		"prefetch", p.Config.RabbitMQ.Prefetch,
		"declare_topology", p.Config.RabbitMQ.DeclareTopology,
	)

	return AMQPOut{Conn: conn, Channel: ch}, nil
}
