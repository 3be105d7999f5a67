package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kiln-run/runner/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskDispatch MessageType = "task.dispatch"
	MessageTypeTaskResult   MessageType = "task.result"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskDispatchPayload carries a task assignment to a waiting Runner.
type TaskDispatchPayload struct {
	Task domain.TaskContext `json:"task"`
}

// TaskResultPayload carries a finished run's outcome back to whatever
// dispatched it (task registry, orchestration layer, CLI caller).
type TaskResultPayload struct {
	Result domain.RunnerResult `json:"result"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTaskDispatch публикует задачу, готовую к выполнению одним из
// свободных Runner'ов. Потребитель: internal/dispatch.
func (p *Publisher) PublishTaskDispatch(ctx context.Context, task domain.TaskContext) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskDispatch,
		Payload:   TaskDispatchPayload{Task: task},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyDispatch, msg)
}

// PublishTaskResult публикует итог выполнения задачи.
// Потребитель: диспетчер/оркестратор, вызвавший Runner.
func (p *Publisher) PublishTaskResult(ctx context.Context, result domain.RunnerResult) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskResult,
		Payload:   TaskResultPayload{Result: result},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeResults, RoutingKeyCompleted, msg)
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, exchange, routingKey, msg)
}
