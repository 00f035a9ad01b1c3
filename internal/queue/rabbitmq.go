package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voxstudio/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName   = "voxstudio.runs"
	publishTimeout = 5 * time.Second
)

// RabbitMQ publishes run events to a topic exchange. Work itself is never
// queued; consumers bind their own queues for auditing or notifications.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQ connects and declares the events exchange
func NewRabbitMQ(url string) (*RabbitMQ, error) {
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
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("RabbitMQ connected successfully", zap.String("exchange", ExchangeName))

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
	}, nil
}

// Publish sends a raw JSON message with the given routing key
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := r.channel.PublishWithContext(
		ctx,
		ExchangeName, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	logger.Debug("Message published",
		zap.String("routing_key", routingKey),
		zap.Int("size", len(body)))

	return nil
}

// PublishRunEvent publishes a finished-run event
func (r *RabbitMQ) PublishRunEvent(ctx context.Context, event *RunEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	return r.Publish(ctx, event.RoutingKey(), body)
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
