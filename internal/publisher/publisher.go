// Package publisher handles publishing resend outcome events to RabbitMQ.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends CloudEvents to RabbitMQ. A nil Publisher is valid and
// drops every event, so the engine runs without a broker.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.SugaredLogger
}

// CloudEvent represents the CloudEvents 1.0 specification structure.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	ID              string      `json:"id"`
	Time            string      `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`
}

// ResendOutcomeData represents data for a completed resend attempt event.
type ResendOutcomeData struct {
	AttemptID  string `json:"attempt_id"`
	ScanID     string `json:"scan_id"`
	Outcome    string `json:"outcome"` // SUCCESS, FAILED
	Reason     string `json:"reason,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	TargetURL  string `json:"target_url,omitempty"`
}

// New creates a new Publisher connected to RabbitMQ. An empty URL disables
// publishing and returns a nil Publisher without error.
func New(url, exchange string, logger *zap.SugaredLogger) (*Publisher, error) {
	if url == "" {
		logger.Info("Event publishing disabled: no RabbitMQ URL configured")
		return nil, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if exchange == "" {
		exchange = "transmission.events"
	}

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Close closes the RabbitMQ connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishResendOutcome publishes the outcome of a resend attempt.
func (p *Publisher) PublishResendOutcome(data ResendOutcomeData) error {
	if p == nil {
		return nil
	}

	eventType := "transmission.resend.completed"
	routingKey := "resend.completed"
	if data.Outcome != "SUCCESS" {
		eventType = "transmission.resend.failed"
		routingKey = "resend.failed"
	}

	event := p.createEvent(eventType, data)
	return p.publish(event, routingKey)
}

func (p *Publisher) createEvent(eventType string, data interface{}) CloudEvent {
	return CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          "/transmission-monitor",
		ID:              uuid.New().String(),
		Time:            time.Now().UTC().Format(time.RFC3339),
		DataContentType: "application/json",
		Data:            data,
	}
}

func (p *Publisher) publish(event CloudEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/cloudevents+json",
			Body:        body,
			MessageId:   event.ID,
			Timestamp:   time.Now(),
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("Event published",
		"type", event.Type,
		"id", event.ID,
		"routing_key", routingKey,
	)

	return nil
}
