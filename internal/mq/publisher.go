package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/ledger"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishJSON publishes v as a persistent JSON message
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// StatePublisher adapts Publisher to the ledger's event emission
// contract.
type StatePublisher struct {
	publisher  *Publisher
	routingKey string
}

// NewStatePublisher creates a slot state event publisher
func NewStatePublisher(publisher *Publisher, routingKey string) *StatePublisher {
	return &StatePublisher{publisher: publisher, routingKey: routingKey}
}

// PublishSlotState emits a committed occupancy change
func (s *StatePublisher) PublishSlotState(ctx context.Context, e ledger.SlotStateEvent) error {
	if err := s.publisher.PublishJSON(ctx, s.routingKey, e); err != nil {
		return err
	}
	s.publisher.logger.Debug("published slot state event",
		zap.String("routing_key", s.routingKey),
		zap.String("sensor_id", e.SensorID),
		zap.Bool("is_occupied", e.IsOccupied),
	)
	return nil
}
