/**
 * @description
 * This package provides a producer for publishing charge lifecycle events to
 * RabbitMQ. It encapsulates the logic for connecting to RabbitMQ and publishing
 * a message to a durable topic exchange with a status-based routing key.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// ChargeStatusEvent is the payload published whenever a charge reaches a new status.
type ChargeStatusEvent struct {
	ChargeID  uuid.UUID `json:"charge_id"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	PublishChargeStatusEvent(ctx context.Context, event ChargeStatusEvent) error
	Close()
}

// EventProducerFallback is a minimal no-op publisher used when RabbitMQ is
// unavailable or unconfigured at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) PublishChargeStatusEvent(ctx context.Context, event ChargeStatusEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"charge status event publish skipped\" charge_id=%s status=%s", event.ChargeID, event.Status)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer bound to an exchange.
func NewEventProducer(amqpURL string, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if exchange == "" {
		exchange = "charge_events"
	}
	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

// PublishChargeStatusEvent publishes a charge status event with a routing key of
// the form "charge.status.<status>".
func (p *EventProducer) PublishChargeStatusEvent(ctx context.Context, event ChargeStatusEvent) error {
	routingKey := "charge.status." + strings.ToLower(event.Status)
	return p.publish(ctx, routingKey, event)
}

func (p *EventProducer) publish(ctx context.Context, routingKey string, body interface{}) error {
	if err := p.ensureExchange(); err != nil {
		return err
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" exchange=%s routing_key=%s err=%v", p.exchange, routingKey, err)
		return err
	}

	msg := amqp091.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        jsonBody,
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", p.exchange, routingKey, err)
		// One-shot retry: reopen channel, re-declare the exchange, and try again
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return err
		}
		p.channel = ch
		if exErr := p.declareExchange(); exErr != nil {
			return exErr
		}
		return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	}
	return nil
}

func (p *EventProducer) ensureExchange() error {
	if err := p.declareExchange(); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", p.exchange, err)
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return chErr
		}
		p.channel = ch
		return p.declareExchange()
	}
	return nil
}

func (p *EventProducer) declareExchange() error {
	return p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
