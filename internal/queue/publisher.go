package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher delivers one notification to the broker.  Implementations do
// not retry; the dispatcher logs and drops failures.
type Publisher interface {
	Publish(ctx context.Context, msg TicketPurchased) error
	Close() error
}

// RabbitPublisher publishes persistent JSON messages to a durable queue on
// the default exchange.  The connection is opened lazily and dropped after
// any failure so the next message redials.
type RabbitPublisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitPublisher(url, queue string) *RabbitPublisher {
	if queue == "" {
		queue = DefaultTopic
	}
	return &RabbitPublisher{url: url, queue: queue}
}

func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *RabbitPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg TicketPurchased) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// KafkaPublisher writes notifications keyed by event id so all messages of
// one event land on the same partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg TicketPurchased) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(msg.EventID, 10)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "message-id", Value: []byte(uuid.NewString())},
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// LogPublisher only logs.  Used when no broker is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, msg TicketPurchased) error {
	p.Logger.Info("ticket notification",
		zap.Uint64("ticket_id", msg.TicketID),
		zap.Uint64("event_id", msg.EventID),
		zap.String("username", msg.Username),
		zap.Int("quantity", msg.Quantity),
		zap.Stringer("total_price", msg.TotalPrice),
		zap.Int("remaining_seats", msg.RemainingSeats),
		zap.Int("sold_last_24h", msg.SoldLast24Hours))
	return nil
}

func (LogPublisher) Close() error { return nil }

// NewPublisher picks the transport by name: "rabbitmq", "kafka" or "none".
func NewPublisher(transport, rabbitURL string, kafkaBrokers []string, topic string, logger *zap.Logger) (Publisher, error) {
	switch transport {
	case "rabbitmq", "amqp":
		return NewRabbitPublisher(rabbitURL, topic), nil
	case "kafka":
		if len(kafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka transport needs at least one broker")
		}
		return NewKafkaPublisher(kafkaBrokers, topic), nil
	case "", "none", "log":
		return LogPublisher{Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown notification transport %q", transport)
}
