package passworker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"product-image-miner/config"
	"product-image-miner/internal/passes"
	"product-image-miner/internal/pipeline"
)

type ackRecorder struct {
	mu      sync.Mutex
	acked   int
	rejects []bool
	nacks   []bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects = append(a.rejects, requeue)
	return nil
}

type handlerFunc func(ctx context.Context, msg PassRequestedEnvelope) error

func (f handlerFunc) Handle(ctx context.Context, msg PassRequestedEnvelope) error { return f(ctx, msg) }

func newTestConsumer(h Handler) *Consumer {
	return NewConsumer(NewConsumerParams{
		Config:  &config.Config{},
		Handler: h,
		Logger:  zap.NewNop().Sugar(),
	})
}

func delivery(ack *ackRecorder, messageID string, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, MessageId: messageID, Body: body}
}

func TestConsumer_HandleDeliveryAcksOnSuccess(t *testing.T) {
	t.Parallel()

	var got PassRequestedEnvelope
	c := newTestConsumer(handlerFunc(func(ctx context.Context, msg PassRequestedEnvelope) error {
		got = msg
		return nil
	}))

	ack := &ackRecorder{}
	c.handleDelivery(context.Background(), delivery(ack, "evt-1", []byte(`{"event_name":"images/pass.requested","data":{"pass":"retry"}}`)))

	require.Equal(t, 1, ack.acked)
	require.Empty(t, ack.rejects)
	require.Equal(t, "evt-1", got.EventID)
	require.Equal(t, "retry", got.Data.Pass)
}

func TestConsumer_HandleDeliveryRejects(t *testing.T) {
	t.Parallel()

	failing := handlerFunc(func(ctx context.Context, msg PassRequestedEnvelope) error {
		return errors.New("boom")
	})

	cases := map[string]struct {
		messageID string
		body      string
	}{
		"invalid json":     {messageID: "evt-1", body: "{"},
		"missing event id": {body: `{"data":{"pass":"batch"}}`},
		"handler error":    {messageID: "evt-1", body: `{"data":{"pass":"batch"}}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ack := &ackRecorder{}
			newTestConsumer(failing).handleDelivery(context.Background(), delivery(ack, tc.messageID, []byte(tc.body)))
			require.Zero(t, ack.acked)
			require.Equal(t, []bool{false}, ack.rejects)
		})
	}
}

func TestConsumer_HandleDeliveryRequeuesOnShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestConsumer(handlerFunc(func(ctx context.Context, msg PassRequestedEnvelope) error {
		cancel()
		return ctx.Err()
	}))

	ack := &ackRecorder{}
	c.handleDelivery(ctx, delivery(ack, "evt-1", []byte(`{"data":{"pass":"batch"}}`)))

	require.Equal(t, []bool{true}, ack.nacks)
	require.Empty(t, ack.rejects)
}

func TestConsumer_MissingHandler(t *testing.T) {
	t.Parallel()

	c := NewConsumer(NewConsumerParams{Config: &config.Config{}, Logger: zap.NewNop().Sugar()})
	ack := &ackRecorder{}
	c.handleDelivery(context.Background(), delivery(ack, "evt-1", []byte(`{"data":{"pass":"batch"}}`)))
	require.Equal(t, []bool{false}, ack.rejects)
}

func TestConsumer_StartDisabledWithoutChannel(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(nil)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}

type runnerFunc func(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error)

func (f runnerFunc) Run(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error) {
	return f(ctx, pass)
}

func newTestHandler(r passRunner) *PassHandler {
	h := NewPassHandler(NewPassHandlerParams{Logger: zap.NewNop().Sugar()})
	h.runner = r
	return h
}

func TestPassHandler_Handle(t *testing.T) {
	t.Parallel()

	var ran []pipeline.Pass
	h := newTestHandler(runnerFunc(func(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error) {
		ran = append(ran, pass)
		return pipeline.Summary{Pass: pass, Succeeded: 1}, nil
	}))

	require.NoError(t, h.Handle(context.Background(), PassRequestedEnvelope{
		EventName: EventPassRequested,
		EventID:   "evt-1",
		Data:      PassRequestedEventData{Pass: "batch"},
	}))
	require.NoError(t, h.Handle(context.Background(), PassRequestedEnvelope{
		EventID: "evt-2",
		Data:    PassRequestedEventData{Pass: "retry"},
	}))
	require.Equal(t, []pipeline.Pass{pipeline.PassBatch, pipeline.PassRetry}, ran)
}

func TestPassHandler_HandleInvalid(t *testing.T) {
	t.Parallel()

	h := newTestHandler(runnerFunc(func(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error) {
		t.Fatalf("runner must not be called for %q", pass)
		return pipeline.Summary{}, nil
	}))

	for _, msg := range []PassRequestedEnvelope{
		{EventID: "evt", Data: PassRequestedEventData{}},
		{EventID: "evt", Data: PassRequestedEventData{Pass: "crawl"}},
		{EventID: "evt", EventName: "crawler/url.requested", Data: PassRequestedEventData{Pass: "batch"}},
	} {
		require.Error(t, h.Handle(context.Background(), msg))
	}
}

func TestPassHandler_BusyIsAcknowledged(t *testing.T) {
	t.Parallel()

	h := newTestHandler(runnerFunc(func(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error) {
		return pipeline.Summary{Pass: pass}, passes.ErrBusy
	}))
	require.NoError(t, h.Handle(context.Background(), PassRequestedEnvelope{EventID: "evt", Data: PassRequestedEventData{Pass: "retry"}}))

	failing := newTestHandler(runnerFunc(func(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error) {
		return pipeline.Summary{Pass: pass}, errors.New("write output: disk full")
	}))
	err := failing.Handle(context.Background(), PassRequestedEnvelope{EventID: "evt", Data: PassRequestedEventData{Pass: "batch"}})
	require.ErrorContains(t, err, "batch pass: write output: disk full")
}

func TestPassRequestedEnvelope_JSON(t *testing.T) {
	t.Parallel()

	var env PassRequestedEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"event_name":"images/pass.requested","event_id":"e","ts":"2024-01-02T03:04:05Z","data":{"pass":"batch"}}`), &env))
	require.Equal(t, "batch", env.Data.Pass)
	require.Equal(t, 2024, env.TS.Year())
}
