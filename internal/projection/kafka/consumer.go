package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bhojanhub/qr-ordering/internal/order/domain"
	"github.com/bhojanhub/qr-ordering/internal/projection"
	"github.com/bhojanhub/qr-ordering/pkg/idempotency"
	"github.com/bhojanhub/qr-ordering/pkg/tracing"
)

// Consumer feeds the projection cache from the push channel. The
// channel is at-least-once and unordered relative to full refetches,
// so every application step is idempotent: physical redeliveries are
// dropped by offset, logical duplicates by the durable order-id seen
// set, and whatever both miss the cache absorbs itself.
type Consumer struct {
	log      *slog.Logger
	reader   *kafka.Reader
	cache    *projection.Cache
	registry *projection.Registry
	idem     *idempotency.Store
	tracer   trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string,
	cache *projection.Cache, registry *projection.Registry, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:      log,
		reader:   r,
		cache:    cache,
		registry: registry,
		idem:     idem,
		tracer:   otel.Tracer("projection-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		key := c.idem.OffsetKey(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
		} else if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		eventType := headerValue(msg.Headers, "event_type")
		msgCtx, span := c.tracer.Start(msgCtx, "Consume"+eventType)

		switch eventType {
		case domain.EventNewOrder:
			c.handleNewOrder(msgCtx, msg.Value)
		case domain.EventOrderStatusUpdate:
			c.handleStatusUpdate(msg.Value)
		default:
			c.log.Warn("unknown event type", "event_type", eventType)
		}

		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) handleNewOrder(ctx context.Context, payload []byte) {
	orders, err := projection.NormalizeNewOrder(payload)
	if err != nil {
		c.log.Error("newOrder payload rejected", "err", err)
		return
	}
	for _, o := range orders {
		dup, err := c.idem.Seen(ctx, c.idem.OrderKey(o.ID))
		if err != nil {
			// Redis down degrades to the cache's in-memory dedup.
			c.log.Error("order dedup check failed", "order_id", o.ID, "err", err)
		} else if dup {
			c.log.Info("duplicate order dropped", "order_id", o.ID)
			continue
		}
		if c.cache.ApplyNewOrder(o) {
			c.broadcast(domain.EventNewOrder, o)
		}
	}
}

func (c *Consumer) handleStatusUpdate(payload []byte) {
	var u domain.StatusUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		c.log.Error("orderStatusUpdate payload rejected", "err", err)
		return
	}
	if u.NewStatus != domain.StatusClosed && !u.NewStatus.Valid() {
		c.log.Warn("status update with unknown status dropped", "order_id", u.OrderID, "status", u.NewStatus)
		return
	}
	if c.cache.ApplyStatusChange(u.OrderID, u.NewStatus) {
		c.broadcast(domain.EventOrderStatusUpdate, u)
	}
}

func (c *Consumer) broadcast(name string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		c.log.Error("broadcast marshal failed", "event", name, "err", err)
		return
	}
	c.registry.BroadcastToAdmins(projection.Event{Name: name, Payload: payload})
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
