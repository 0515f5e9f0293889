package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/retry"
)

// DefaultGroupID is the Kafka consumer group of the notification reader.
const DefaultGroupID = "ticket-notification-group"

// NotificationWriter turns a TicketPurchased message into the customer
// notice.  Mail delivery lives elsewhere; the notice is appended to
// <Dir>/notifications.log one line per message.
type NotificationWriter struct {
	Dir           string
	FallbackEmail string
	Now           func() time.Time

	mu sync.Mutex
}

// Handle decodes body and writes the notice.
func (w *NotificationWriter) Handle(_ context.Context, body []byte) error {
	var msg TicketPurchased
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	email := msg.Email
	if email == "" {
		email = w.FallbackEmail
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(w.Dir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Ticket purchased | to=%s | ticket_id=%d | event_id=%d | event=%q | user=%s | quantity=%d | total=%s | remaining=%d | sold_24h=%d\n",
		now().UTC().Format(time.RFC3339), email, msg.TicketID, msg.EventID, msg.EventTitle, msg.Username,
		msg.Quantity, msg.TotalPrice, msg.RemainingSeats, msg.SoldLast24Hours)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// MessageHandler processes one raw message body.
type MessageHandler interface {
	Handle(ctx context.Context, body []byte) error
}

// RabbitConsumer reads the notification queue with manual acks and
// reconnects with doubling backoff (capped at 30s) until ctx ends.
type RabbitConsumer struct {
	URL     string
	Queue   string
	Handler MessageHandler
	Logger  *zap.Logger
}

// Run blocks until ctx is cancelled.
func (c *RabbitConsumer) Run(ctx context.Context) error {
	queue := c.Queue
	if queue == "" {
		queue = DefaultTopic
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("notification consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if err := retry.Sleep(ctx, backoff); err != nil {
				return err
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, queue)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("notification consumer: loop ended, reconnecting", zap.Error(err))
		if err := retry.Sleep(ctx, 2*time.Second); err != nil {
			return err
		}
	}
}

func (c *RabbitConsumer) consume(ctx context.Context, conn *amqp.Connection, queue string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("notification consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for d := range msgs {
		if err := c.Handler.Handle(ctx, d.Body); err != nil {
			c.Logger.Error("notification consumer: handle failed", zap.String("message_id", d.MessageId), zap.Error(err))
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// KafkaConsumer reads the notification topic inside a consumer group and
// commits each message after it has been handled.  Messages that fail to
// decode are logged and committed so they do not block the partition.
type KafkaConsumer struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler MessageHandler
	Logger  *zap.Logger
}

// Run blocks until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	topic, group := c.Topic, c.GroupID
	if topic == "" {
		topic = DefaultTopic
	}
	if group == "" {
		group = DefaultGroupID
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: c.Brokers,
		Topic:   topic,
		GroupID: group,
	})
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		if err := c.Handler.Handle(ctx, m.Value); err != nil {
			c.Logger.Error("notification consumer: handle failed",
				zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		}
		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.Logger.Warn("notification consumer: commit failed", zap.Error(err))
		}
	}
}
