package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// SyncedRoutingKey is the routing key of thread-synced events.
const SyncedRoutingKey = "crmsync.thread.synced"

// syncedEventType names the event and its schema version.
const syncedEventType = "crmsync.thread.synced.v1"

// EventMeta is the envelope header of published events.
type EventMeta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// EventEnvelope wraps an event payload with its metadata.
type EventEnvelope struct {
	Meta EventMeta          `json:"meta"`
	Data models.SyncSummary `json:"data"`
}

// NewSyncedEnvelope builds the envelope for a completed sync. The run id
// doubles as correlation id.
func NewSyncedEnvelope(summary models.SyncSummary) EventEnvelope {
	return EventEnvelope{
		Meta: EventMeta{
			ID:            uuid.NewString(),
			CorrelationID: summary.RunID,
			Producer:      "crmsync",
			Time:          summary.FinishedAt,
			Type:          syncedEventType,
		},
		Data: summary,
	}
}

// amqpNotifier publishes sync summaries to a topic exchange.
type amqpNotifier struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// NewAMQPNotifier dials url and declares a durable topic exchange.
func NewAMQPNotifier(url, exchange string, logger *slog.Logger) (Notifier, func() error, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &amqpNotifier{conn: conn, exchange: exchange, log: logger}
	return n, conn.Close, nil
}

func (n *amqpNotifier) NotifySynced(ctx context.Context, summary models.SyncSummary) error {
	ch, err := n.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enabling publisher confirms: %w", err)
	}

	envelope := NewSyncedEnvelope(summary)
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshaling sync event: %w", err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, n.exchange, SyncedRoutingKey, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     envelope.Meta.ID,
			CorrelationId: envelope.Meta.CorrelationID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing sync event: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for broker confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker rejected sync event %s", envelope.Meta.ID)
	}
	n.log.Debug("published", slog.String("key", SyncedRoutingKey), slog.String("exchange", n.exchange))
	return nil
}
