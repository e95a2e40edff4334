package observer

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/id-capture-go/internal/logger"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPObserver publishes selected capture events to a topic exchange,
// routed by event type.
type AMQPObserver struct {
	channel  Channel
	exchange string
	types    map[EventType]bool
	log      *logrus.Entry

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPObserver publishes on ch. With no types every event is published.
func NewAMQPObserver(ch Channel, exchange string, types ...EventType) *AMQPObserver {
	o := &AMQPObserver{
		channel:  ch,
		exchange: exchange,
		log:      logger.Component("amqp_observer").WithField("exchange", exchange),
	}
	if len(types) > 0 {
		o.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			o.types[t] = true
		}
	}
	return o
}

// DialAMQP connects to url, declares a durable topic exchange and returns an
// observer that owns the connection.
func DialAMQP(url, exchange string, types ...EventType) (*AMQPObserver, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	o := NewAMQPObserver(ch, exchange, types...)
	o.conn = conn
	o.ch = ch
	return o, nil
}

// OnEvent publishes the event as JSON. Failures are logged; delivery is best effort.
func (o *AMQPObserver) OnEvent(ctx context.Context, event CaptureEvent) {
	if o.types != nil && !o.types[event.EventType] {
		return
	}
	if err := o.Publish(ctx, event); err != nil {
		o.log.WithFields(logrus.Fields{
			"event_type": event.EventType,
			"session_id": event.SessionID,
			"error":      err,
		}).Warn("Failed to publish capture event")
	}
}

// Publish sends one event synchronously.
func (o *AMQPObserver) Publish(ctx context.Context, event CaptureEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = o.channel.PublishWithContext(ctx,
		o.exchange,
		string(event.EventType),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: event.SessionID,
			Timestamp:     event.Timestamp,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// GetObserverName returns the observer name
func (o *AMQPObserver) GetObserverName() string {
	return "amqp_observer"
}

// Close closes the owned channel and connection, if any.
func (o *AMQPObserver) Close() error {
	if o.ch != nil {
		o.ch.Close()
	}
	if o.conn != nil {
		return o.conn.Close()
	}
	return nil
}
